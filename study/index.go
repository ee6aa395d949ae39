package study

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"mammo-overlay/constants"
	"mammo-overlay/utils"

	"go.uber.org/zap"
)

var ErrSeriesUnavailable = errors.New("series instances unavailable")

// Source lists the instance files of one series, sorted by file name.
type Source interface {
	Instances(ctx context.Context, seriesUID string) ([]string, error)
}

// DirSource reads {root}/{seriesUID}/*.dcm.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (source *DirSource) Instances(ctx context.Context, seriesUID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := utils.ListFiles(filepath.Join(source.root, seriesUID), constants.DicomExt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSeriesUnavailable, seriesUID, err)
	}
	return paths, nil
}

type SeriesError struct {
	SubjectID string
	SeriesUID string
	Err       error
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("subject %s series %s: %v", e.SubjectID, e.SeriesUID, e.Err)
}

func (e *SeriesError) Unwrap() error {
	return e.Err
}

// Index is the read-only subject/series lookup built from a manifest.
type Index struct {
	entries   []StudyEntry
	bySubject map[string][]int
	subjects  []string
}

// BuildIndex resolves every manifest row through source. A series that
// cannot be listed stays in the index with no instances and is reported in
// the returned failures.
func BuildIndex(ctx context.Context, manifest *Manifest, source Source, logger *zap.Logger) (*Index, []*SeriesError, error) {
	index := &Index{
		entries:   make([]StudyEntry, 0, len(manifest.Rows)),
		bySubject: make(map[string][]int),
		subjects:  make([]string, 0),
	}
	failures := make([]*SeriesError, 0)
	seen := make(map[string]bool)

	for _, row := range manifest.Rows {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		key := row.SubjectID + "\x00" + row.SeriesUID
		if seen[key] {
			continue
		}
		seen[key] = true

		instances, err := source.Instances(ctx, row.SeriesUID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, err
			}
			logger.Warn("series not indexed",
				zap.String("subject", row.SubjectID),
				zap.String("series", row.SeriesUID),
				zap.Error(err))
			failures = append(failures, &SeriesError{SubjectID: row.SubjectID, SeriesUID: row.SeriesUID, Err: err})
			instances = []string{}
		}

		if _, ok := index.bySubject[row.SubjectID]; !ok {
			index.subjects = append(index.subjects, row.SubjectID)
		}
		index.bySubject[row.SubjectID] = append(index.bySubject[row.SubjectID], len(index.entries))
		index.entries = append(index.entries, StudyEntry{
			SubjectID: row.SubjectID,
			SeriesUID: row.SeriesUID,
			Instances: instances,
		})
	}

	logger.Info("study index built",
		zap.Int("subjects", len(index.subjects)),
		zap.Int("series", len(index.entries)),
		zap.Int("failures", len(failures)))
	return index, failures, nil
}

// Subjects returns subject ids in manifest (sorted) order.
func (index *Index) Subjects() []string {
	return append([]string(nil), index.subjects...)
}

func (index *Index) Lookup(subjectID string) []StudyEntry {
	positions := index.bySubject[subjectID]
	entries := make([]StudyEntry, 0, len(positions))
	for _, i := range positions {
		entries = append(entries, index.entries[i])
	}
	return entries
}

func (index *Index) Entries() []StudyEntry {
	return append([]StudyEntry(nil), index.entries...)
}
