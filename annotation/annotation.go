package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mammo-overlay/constants"
	"mammo-overlay/entities"
	"mammo-overlay/metadata"
)

var (
	ErrNamingConvention = errors.New("annotation file name must be {subject}_{view}_{laterality}_{suffix}")
	ErrLoad             = errors.New("annotation file unreadable")
)

type NamingError struct {
	Name   string
	Reason string
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrNamingConvention, e.Name, e.Reason)
}

func (e *NamingError) Is(target error) bool {
	return target == ErrNamingConvention
}

// NameTokens is the decomposed annotation file name.
type NameTokens struct {
	Path       string                `json:"path"`
	SubjectID  string                `json:"subject_id"`
	View       metadata.ViewPosition `json:"view"`
	Laterality metadata.Laterality   `json:"laterality"`
	Suffix     string                `json:"suffix"`
}

// ParseName splits the base name (extension removed) of path on "_".
// Exactly four non-empty tokens are required, the second being CC or MLO
// and the third L or R.
func ParseName(path string) (NameTokens, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	tokens := strings.Split(stem, constants.NameDelimiter)
	if len(tokens) != constants.NameTokenCount {
		return NameTokens{}, &NamingError{Name: base, Reason: fmt.Sprintf("%d tokens", len(tokens))}
	}
	for i, token := range tokens {
		if token == "" {
			return NameTokens{}, &NamingError{Name: base, Reason: fmt.Sprintf("token %d empty", i+1)}
		}
	}

	view := metadata.ParseView(tokens[1])
	if view == metadata.ViewUnknown {
		return NameTokens{}, &NamingError{Name: base, Reason: fmt.Sprintf("view token %q", tokens[1])}
	}
	laterality := metadata.ParseLaterality(tokens[2])
	if laterality == metadata.LateralityUnknown {
		return NameTokens{}, &NamingError{Name: base, Reason: fmt.Sprintf("laterality token %q", tokens[2])}
	}

	return NameTokens{
		Path:       path,
		SubjectID:  tokens[0],
		View:       view,
		Laterality: laterality,
		Suffix:     tokens[3],
	}, nil
}

// OutputName is the raster file name for a match of these tokens.
func (tokens NameTokens) OutputName() string {
	return strings.Join([]string{
		tokens.SubjectID,
		string(tokens.View),
		string(tokens.Laterality),
		constants.OverlaySuffix,
	}, constants.NameDelimiter) + constants.OverlayExt
}

type AnnotationRecord struct {
	Path              string                `json:"path"`
	SubjectID         string                `json:"subject_id"`
	EncodedLaterality metadata.Laterality   `json:"encoded_laterality"`
	EncodedView       metadata.ViewPosition `json:"encoded_view"`
	Polygons          []entities.Polygon    `json:"polygons"`
}

func (record *AnnotationRecord) Tokens() NameTokens {
	return NameTokens{
		Path:       record.Path,
		SubjectID:  record.SubjectID,
		View:       record.EncodedView,
		Laterality: record.EncodedLaterality,
	}
}

func (record *AnnotationRecord) String() string {
	b, _ := json.Marshal(record)
	return string(b)
}

// Decode reads a JSON list of entries; each entry becomes one polygon in
// input order.
func Decode(r io.Reader) ([]entities.Polygon, error) {
	var entries []entities.GeometryEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entities.PolygonsFromEntries(entries), nil
}

// ReadPolygons decodes an annotation file without looking at its name.
func ReadPolygons(path string) ([]entities.Polygon, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer file.Close()

	polygons, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	return polygons, nil
}

// Load parses the file name and then the polygon list of one annotation file.
func Load(path string) (AnnotationRecord, error) {
	tokens, err := ParseName(path)
	if err != nil {
		return AnnotationRecord{}, err
	}
	return LoadTokens(tokens)
}

func LoadTokens(tokens NameTokens) (AnnotationRecord, error) {
	polygons, err := ReadPolygons(tokens.Path)
	if err != nil {
		return AnnotationRecord{}, err
	}

	return AnnotationRecord{
		Path:              tokens.Path,
		SubjectID:         tokens.SubjectID,
		EncodedLaterality: tokens.Laterality,
		EncodedView:       tokens.View,
		Polygons:          polygons,
	}, nil
}
