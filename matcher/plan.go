package matcher

import (
	"mammo-overlay/annotation"
	"mammo-overlay/study"
)

// Unit is one scheduling unit: an annotation file against one series of its
// subject.
type Unit struct {
	Tokens annotation.NameTokens
	Entry  study.StudyEntry
}

type Plan struct {
	Units []Unit
	// Unannotated lists manifest subjects with no annotation file.
	Unannotated []string
	// Orphans are annotation files whose subject is not in the manifest.
	Orphans []annotation.NameTokens
}

// BuildPlan pairs annotation files with series by exact subject id. Units
// are ordered by manifest subject, then annotation path, then series.
func BuildPlan(index *study.Index, found []annotation.NameTokens) Plan {
	plan := Plan{
		Units:       make([]Unit, 0),
		Unannotated: make([]string, 0),
		Orphans:     make([]annotation.NameTokens, 0),
	}
	grouped := annotation.BySubject(found)

	known := make(map[string]bool)
	for _, subject := range index.Subjects() {
		known[subject] = true
		files := grouped[subject]
		if len(files) == 0 {
			plan.Unannotated = append(plan.Unannotated, subject)
			continue
		}
		entries := index.Lookup(subject)
		for _, tokens := range files {
			for _, entry := range entries {
				plan.Units = append(plan.Units, Unit{Tokens: tokens, Entry: entry})
			}
		}
	}

	for _, tokens := range found {
		if !known[tokens.SubjectID] {
			plan.Orphans = append(plan.Orphans, tokens)
		}
	}
	return plan
}
