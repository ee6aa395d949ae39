package matcher

import (
	"fmt"
	"sort"
	"time"

	"mammo-overlay/constants"
	"mammo-overlay/metadata"
)

// Candidate is an instance whose laterality and view satisfied the
// annotation.
type Candidate struct {
	Path string
	Meta metadata.DicomMetadata
}

// TieBreak decides which of the satisfying candidates becomes the match.
type TieBreak interface {
	Name() string
	// ShortCircuit reports whether the first satisfying candidate is accepted
	// without reading the rest of the series.
	ShortCircuit() bool
	// Choose is called with at least one hit, in path order.
	Choose(hits []Candidate) (Candidate, error)
}

// FirstMatch keeps the first satisfying candidate in path order. Duplicate
// acquisitions later in the series are never read, so ambiguity stays
// invisible under this policy.
type FirstMatch struct{}

func (FirstMatch) Name() string       { return constants.TieBreakFirstMatch }
func (FirstMatch) ShortCircuit() bool { return true }

func (FirstMatch) Choose(hits []Candidate) (Candidate, error) {
	return hits[0], nil
}

// ErrorOnAmbiguous refuses to pick when more than one candidate satisfies
// the annotation.
type ErrorOnAmbiguous struct{}

func (ErrorOnAmbiguous) Name() string       { return constants.TieBreakErrorOnAmbiguous }
func (ErrorOnAmbiguous) ShortCircuit() bool { return false }

func (ErrorOnAmbiguous) Choose(hits []Candidate) (Candidate, error) {
	if len(hits) > 1 {
		return Candidate{}, fmt.Errorf("%w: %d candidates", ErrAmbiguous, len(hits))
	}
	return hits[0], nil
}

// PreferByAcquisitionTime keeps the earliest acquisition. Candidates without
// a parsable acquisition date/time sort after timed ones; ties keep path
// order.
type PreferByAcquisitionTime struct{}

func (PreferByAcquisitionTime) Name() string       { return constants.TieBreakAcquisitionTime }
func (PreferByAcquisitionTime) ShortCircuit() bool { return false }

func (PreferByAcquisitionTime) Choose(hits []Candidate) (Candidate, error) {
	type timed struct {
		candidate Candidate
		at        time.Time
		ok        bool
	}
	ordered := make([]timed, 0, len(hits))
	for _, hit := range hits {
		at, ok := hit.Meta.AcquiredAt()
		ordered = append(ordered, timed{candidate: hit, at: at, ok: ok})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ok != ordered[j].ok {
			return ordered[i].ok
		}
		return ordered[i].ok && ordered[i].at.Before(ordered[j].at)
	})
	return ordered[0].candidate, nil
}

func NewTieBreak(name string) (TieBreak, error) {
	switch name {
	case "", constants.TieBreakFirstMatch:
		return FirstMatch{}, nil
	case constants.TieBreakErrorOnAmbiguous:
		return ErrorOnAmbiguous{}, nil
	case constants.TieBreakAcquisitionTime:
		return PreferByAcquisitionTime{}, nil
	}
	return nil, fmt.Errorf("unknown tie-break policy %q", name)
}
