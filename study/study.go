package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"mammo-overlay/utils"
)

var ErrManifest = errors.New("cohort manifest unusable")

type ManifestRow struct {
	Line      int    `json:"line"`
	SubjectID string `json:"subject_id"`
	SeriesUID string `json:"series_uid"`
}

type Manifest struct {
	Rows []ManifestRow `json:"rows"`
	// Skipped holds the line numbers of rows missing a subject or series.
	Skipped []int `json:"skipped,omitempty"`
}

// LoadManifest reads the cohort CSV and returns its rows sorted by subject
// id. Rows of one subject keep their file order.
func LoadManifest(path, subjectColumn, seriesColumn string) (*Manifest, error) {
	manifest := &Manifest{Rows: make([]ManifestRow, 0)}
	subjectIdx, seriesIdx := -1, -1
	line := 0

	err := utils.ReadCSVByLines(path, func(items []string) error {
		line++
		if line == 1 {
			var found bool
			if subjectIdx, found = utils.FindInSlice(items, subjectColumn); !found {
				return fmt.Errorf("column %q not in header", subjectColumn)
			}
			if seriesIdx, found = utils.FindInSlice(items, seriesColumn); !found {
				return fmt.Errorf("column %q not in header", seriesColumn)
			}
			return nil
		}

		if subjectIdx >= len(items) || seriesIdx >= len(items) {
			manifest.Skipped = append(manifest.Skipped, line)
			return nil
		}
		subject := strings.TrimSpace(items[subjectIdx])
		series := strings.TrimSpace(items[seriesIdx])
		if subject == "" || series == "" {
			manifest.Skipped = append(manifest.Skipped, line)
			return nil
		}
		manifest.Rows = append(manifest.Rows, ManifestRow{Line: line, SubjectID: subject, SeriesUID: series})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, path, err)
	}
	if line == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", ErrManifest, path)
	}

	sort.SliceStable(manifest.Rows, func(i, j int) bool {
		return manifest.Rows[i].SubjectID < manifest.Rows[j].SubjectID
	})
	return manifest, nil
}

// StudyEntry is one (subject, series) pair with the instance files present
// for that series, in file-name order.
type StudyEntry struct {
	SubjectID string   `json:"subject_id"`
	SeriesUID string   `json:"series_uid"`
	Instances []string `json:"instances"`
}

func (entry *StudyEntry) String() string {
	b, _ := json.Marshal(entry)
	return string(b)
}
