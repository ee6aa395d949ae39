package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mammo-overlay/constants"
	"mammo-overlay/entities"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

var (
	// MaskPayloadTag and LabelPayloadTag hold JSON lists written by the
	// annotation tool. Both must be present for an instance to carry
	// inline annotation.
	MaskPayloadTag  = tag.Tag{Group: 0x0013, Element: 0x1010}
	LabelPayloadTag = tag.Tag{Group: 0x0013, Element: 0x1011}

	ErrPayloadCorrupt = errors.New("private tag payload corrupt")
	ErrUnreadable     = errors.New("dicom instance unreadable")
)

type PayloadError struct {
	Path string
	Tag  tag.Tag
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPayloadCorrupt, e.Path, e.Tag.String(), e.Err)
}

func (e *PayloadError) Is(target error) bool {
	return target == ErrPayloadCorrupt
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{
		logger: logger,
	}
}

// Read parses the instance at path without its pixel data.
func (extractor *Extractor) Read(path string) (DicomMetadata, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return DicomMetadata{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	meta, err := Extract(&ds)
	meta.Path = path
	if err != nil {
		var payloadErr *PayloadError
		if errors.As(err, &payloadErr) {
			payloadErr.Path = path
		}
		return meta, err
	}

	if len(meta.Missing) > 0 {
		extractor.logger.Debug("metadata fields missing",
			zap.String("instance", path),
			zap.Strings("fields", meta.Missing))
	}
	return meta, nil
}

// Extract builds the normalized record from a parsed dataset. Absent
// standard fields become Unknown and are listed in Missing.
func Extract(ds *dicom.Dataset) (DicomMetadata, error) {
	meta := DicomMetadata{}
	field := func(name string, t tag.Tag) string {
		value, ok := stringValue(ds, t)
		if !ok {
			meta.Missing = append(meta.Missing, name)
			return constants.Unknown
		}
		return value
	}

	meta.PatientName = field("PatientName", tag.PatientName)
	meta.PatientID = field("PatientID", tag.PatientID)
	meta.PatientSex = field("PatientSex", tag.PatientSex)
	meta.StudyDate = field("StudyDate", tag.StudyDate)
	meta.Modality = field("Modality", tag.Modality)
	meta.SeriesInstanceUID = field("SeriesInstanceUID", tag.SeriesInstanceUID)
	meta.SOPInstanceUID = field("SOPInstanceUID", tag.SOPInstanceUID)
	meta.AcquisitionDate = field("AcquisitionDate", tag.AcquisitionDate)
	meta.AcquisitionTime = field("AcquisitionTime", tag.AcquisitionTime)

	meta.Laterality = LateralityUnknown
	if raw, ok := stringValue(ds, tag.ImageLaterality); ok {
		meta.Laterality = ParseLaterality(raw)
	} else if raw, ok := stringValue(ds, tag.Laterality); ok {
		meta.Laterality = ParseLaterality(raw)
	} else {
		meta.Missing = append(meta.Missing, "ImageLaterality")
	}

	meaning, ok := viewMeaning(ds)
	if !ok {
		meta.Missing = append(meta.Missing, "ViewCodeSequence")
	}
	meta.ViewPosition = ViewFromMeaning(meaning, ok)

	masks, labels, err := inlinePayload(ds)
	if err != nil {
		return meta, err
	}
	meta.InlineMasks = masks
	meta.InlineLabels = labels

	return meta, nil
}

func viewMeaning(ds *dicom.Dataset) (string, bool) {
	elem, err := ds.FindElementByTag(tag.ViewCodeSequence)
	if err != nil || elem.Value == nil || elem.Value.ValueType() != dicom.Sequences {
		return "", false
	}
	items, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok || len(items) == 0 {
		return "", false
	}
	nested, ok := items[0].GetValue().([]*dicom.Element)
	if !ok {
		return "", false
	}
	item := dicom.Dataset{Elements: nested}
	return stringValue(&item, tag.CodeMeaning)
}

func inlinePayload(ds *dicom.Dataset) (*[]entities.Polygon, *[]string, error) {
	rawMasks, hasMasks := rawValue(ds, MaskPayloadTag)
	rawLabels, hasLabels := rawValue(ds, LabelPayloadTag)
	if !hasMasks || !hasLabels {
		return nil, nil, nil
	}

	var entries []entities.GeometryEntry
	if err := json.Unmarshal([]byte(rawMasks), &entries); err != nil {
		return nil, nil, &PayloadError{Tag: MaskPayloadTag, Err: err}
	}
	masks := entities.PolygonsFromEntries(entries)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(rawLabels), &items); err != nil {
		return nil, nil, &PayloadError{Tag: LabelPayloadTag, Err: err}
	}
	labels := make([]string, 0, len(items))
	for _, item := range items {
		var label string
		if err := json.Unmarshal(item, &label); err != nil {
			label = string(item)
		}
		labels = append(labels, label)
	}

	return &masks, &labels, nil
}

// rawValue returns the element text whether it was decoded as strings
// (explicit VR) or left as bytes (implicit VR / UN).
func rawValue(ds *dicom.Dataset, t tag.Tag) (string, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return "", false
	}

	var raw string
	switch elem.Value.ValueType() {
	case dicom.Strings:
		raw = strings.Join(dicom.MustGetStrings(elem.Value), "\\")
	case dicom.Bytes:
		raw = string(dicom.MustGetBytes(elem.Value))
	default:
		return "", false
	}
	return strings.Trim(raw, " \x00"), true
}

func stringValue(ds *dicom.Dataset, t tag.Tag) (string, bool) {
	raw, ok := rawValue(ds, t)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
