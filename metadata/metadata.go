package metadata

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"mammo-overlay/constants"
	"mammo-overlay/entities"
)

type Laterality string

const (
	Left              Laterality = constants.LateralityLeft
	Right             Laterality = constants.LateralityRight
	LateralityUnknown Laterality = constants.Unknown
)

type ViewPosition string

const (
	CC          ViewPosition = constants.ViewCC
	MLO         ViewPosition = constants.ViewMLO
	ViewUnknown ViewPosition = constants.Unknown
)

// ParseLaterality maps a DICOM CS value (or file-name token) to a Laterality.
func ParseLaterality(raw string) Laterality {
	switch strings.TrimSpace(raw) {
	case constants.LateralityLeft:
		return Left
	case constants.LateralityRight:
		return Right
	}
	return LateralityUnknown
}

// ParseView maps a file-name token to a ViewPosition.
func ParseView(raw string) ViewPosition {
	switch raw {
	case constants.ViewCC:
		return CC
	case constants.ViewMLO:
		return MLO
	}
	return ViewUnknown
}

// ViewFromMeaning derives the view from a ViewCodeSequence CodeMeaning.
// Only "cranio-caudal" is CC; any other present meaning is MLO, so other
// view taxonomies (ML, LM, XCCL...) are not supported.
func ViewFromMeaning(meaning string, present bool) ViewPosition {
	if !present {
		return ViewUnknown
	}
	if meaning == constants.ViewMeaningCranioCaudal {
		return CC
	}
	return MLO
}

// DicomMetadata is the normalized record read from one instance.
// InlineMasks and InlineLabels are nil when the private tags are absent and
// non-nil (possibly empty) when they were present.
type DicomMetadata struct {
	Path              string              `json:"path"`
	PatientName       string              `json:"patient_name"`
	PatientID         string              `json:"patient_id"`
	PatientSex        string              `json:"patient_sex"`
	StudyDate         string              `json:"study_date"`
	Modality          string              `json:"modality"`
	SeriesInstanceUID string              `json:"series_instance_uid"`
	SOPInstanceUID    string              `json:"sop_instance_uid"`
	AcquisitionDate   string              `json:"acquisition_date"`
	AcquisitionTime   string              `json:"acquisition_time"`
	Laterality        Laterality          `json:"laterality"`
	ViewPosition      ViewPosition        `json:"view_position"`
	InlineMasks       *[]entities.Polygon `json:"inline_masks,omitempty"`
	InlineLabels      *[]string           `json:"inline_labels,omitempty"`
	Missing           []string            `json:"missing,omitempty"`
}

func (meta *DicomMetadata) HasInlineAnnotation() bool {
	return meta.InlineMasks != nil && meta.InlineLabels != nil
}

// AcquiredAt combines AcquisitionDate (DA) and AcquisitionTime (TM).
func (meta *DicomMetadata) AcquiredAt() (time.Time, bool) {
	if len(meta.AcquisitionDate) != 8 || meta.AcquisitionTime == constants.Unknown {
		return time.Time{}, false
	}

	clock, fraction := meta.AcquisitionTime, ""
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock, fraction = clock[:i], clock[i+1:]
	}
	if len(clock) < 2 || len(clock) > 6 || len(clock)%2 != 0 {
		return time.Time{}, false
	}
	clock += strings.Repeat("0", 6-len(clock))

	at, err := time.Parse("20060102150405", meta.AcquisitionDate+clock)
	if err != nil {
		return time.Time{}, false
	}

	if fraction != "" {
		if len(fraction) > 9 {
			fraction = fraction[:9]
		}
		fraction += strings.Repeat("0", 9-len(fraction))
		if nanos, err := strconv.Atoi(fraction); err == nil {
			at = at.Add(time.Duration(nanos))
		}
	}
	return at, true
}

func (meta *DicomMetadata) String() string {
	b, _ := json.Marshal(meta)
	return string(b)
}
