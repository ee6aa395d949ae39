package annotation

import (
	"mammo-overlay/constants"
	"mammo-overlay/utils"

	"go.uber.org/zap"
)

type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
	}
}

// Scan lists the annotation files of the directory in name order. Files
// whose names do not decompose are returned as violations, not dropped.
func (store *Store) Scan() ([]NameTokens, []error, error) {
	paths, err := utils.ListFiles(store.dir, constants.AnnotationExt)
	if err != nil {
		return nil, nil, err
	}

	found := make([]NameTokens, 0, len(paths))
	violations := make([]error, 0)
	for _, path := range paths {
		tokens, err := ParseName(path)
		if err != nil {
			store.logger.Warn("annotation name rejected", zap.String("annotation", path), zap.Error(err))
			violations = append(violations, err)
			continue
		}
		found = append(found, tokens)
	}
	return found, violations, nil
}

// BySubject groups tokens by exact subject id, keeping scan order.
func BySubject(found []NameTokens) map[string][]NameTokens {
	grouped := make(map[string][]NameTokens)
	for _, tokens := range found {
		grouped[tokens.SubjectID] = append(grouped[tokens.SubjectID], tokens)
	}
	return grouped
}
