package matcher

import (
	"context"
	"encoding/json"
	"errors"

	"mammo-overlay/annotation"
	"mammo-overlay/metadata"
	"mammo-overlay/study"

	"go.uber.org/zap"
)

var (
	ErrUnmatched = errors.New("no instance matches annotation laterality and view")
	ErrAmbiguous = errors.New("several instances match annotation laterality and view")
)

type MetadataReader interface {
	Read(path string) (metadata.DicomMetadata, error)
}

type MatchResult struct {
	InstancePath string                      `json:"instance_path"`
	SeriesUID    string                      `json:"series_uid"`
	Annotation   annotation.AnnotationRecord `json:"annotation"`
	Metadata     metadata.DicomMetadata      `json:"metadata"`
}

func (result *MatchResult) String() string {
	b, _ := json.Marshal(result)
	return string(b)
}

// CandidateFailure is an instance that could not be read while matching.
type CandidateFailure struct {
	Path string
	Err  error
}

type Outcome struct {
	Result *MatchResult
	// Hits lists every satisfying instance that was read, in path order.
	Hits     []string
	Failures []CandidateFailure
	// Err is nil on a match, otherwise ErrUnmatched, ErrAmbiguous or the
	// context error.
	Err error
}

func (outcome *Outcome) Ambiguous() bool {
	return len(outcome.Hits) > 1
}

type Matcher struct {
	reader MetadataReader
	policy TieBreak
	logger *zap.Logger
}

func NewMatcher(reader MetadataReader, policy TieBreak, logger *zap.Logger) *Matcher {
	return &Matcher{
		reader: reader,
		policy: policy,
		logger: logger,
	}
}

func (matcher *Matcher) Policy() TieBreak {
	return matcher.policy
}

// Match reads the candidates of entry in order and resolves which one the
// annotation describes. Unreadable candidates are recorded and skipped.
func (matcher *Matcher) Match(ctx context.Context, record annotation.AnnotationRecord, entry study.StudyEntry) Outcome {
	logger := matcher.logger.With(
		zap.String("annotation", record.Path),
		zap.String("series", entry.SeriesUID),
		zap.String("policy", matcher.policy.Name()))

	outcome := Outcome{
		Hits:     make([]string, 0),
		Failures: make([]CandidateFailure, 0),
	}
	hits := make([]Candidate, 0)

	for _, path := range entry.Instances {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			return outcome
		}

		meta, err := matcher.reader.Read(path)
		if err != nil {
			logger.Warn("candidate unreadable", zap.String("instance", path), zap.Error(err))
			outcome.Failures = append(outcome.Failures, CandidateFailure{Path: path, Err: err})
			continue
		}

		if meta.Laterality != record.EncodedLaterality || meta.ViewPosition != record.EncodedView {
			continue
		}
		hits = append(hits, Candidate{Path: path, Meta: meta})
		outcome.Hits = append(outcome.Hits, path)

		if matcher.policy.ShortCircuit() {
			break
		}
	}

	if len(hits) == 0 {
		logger.Warn("annotation unmatched", zap.Int("candidates", len(entry.Instances)))
		outcome.Err = ErrUnmatched
		return outcome
	}
	if len(hits) > 1 {
		logger.Warn("ambiguous match", zap.Strings("instances", outcome.Hits))
	}

	chosen, err := matcher.policy.Choose(hits)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Result = &MatchResult{
		InstancePath: chosen.Path,
		SeriesUID:    entry.SeriesUID,
		Annotation:   record,
		Metadata:     chosen.Meta,
	}
	logger.Debug("annotation matched", zap.String("instance", chosen.Path))
	return outcome
}
