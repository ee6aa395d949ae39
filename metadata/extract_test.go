package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mammo-overlay/constants"
	"mammo-overlay/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
	"go.uber.org/zap"
)

const maskPayload = `[{"cgPoints":[{"x":10,"y":10},{"x":20,"y":10},{"x":20,"y":20},{"x":10,"y":20}]},{"cgPoints":[{"x":1.5,"y":2.5}]}]`

func element(t *testing.T, tg tag.Tag, data interface{}) *dicom.Element {
	elem, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return elem
}

func privateElement(t *testing.T, tg tag.Tag, payload string, asBytes bool) *dicom.Element {
	if asBytes {
		value, err := dicom.NewValue([]byte(payload))
		require.NoError(t, err)
		return &dicom.Element{Tag: tg, ValueRepresentation: tag.VRBytes, RawValueRepresentation: "UN", Value: value}
	}
	value, err := dicom.NewValue([]string{payload})
	require.NoError(t, err)
	return &dicom.Element{Tag: tg, ValueRepresentation: tag.VRString, RawValueRepresentation: "LT", Value: value}
}

func viewSequence(t *testing.T, meaning string) *dicom.Element {
	return element(t, tag.ViewCodeSequence, [][]*dicom.Element{
		{element(t, tag.CodeMeaning, []string{meaning})},
	})
}

func baseDataset(t *testing.T) dicom.Dataset {
	return dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.PatientName, []string{"ANON^D1"}),
		element(t, tag.PatientID, []string{"D1-0001"}),
		element(t, tag.PatientSex, []string{"F"}),
		element(t, tag.StudyDate, []string{"20100101"}),
		element(t, tag.Modality, []string{"MG"}),
		element(t, tag.SeriesInstanceUID, []string{"1.2.3"}),
		element(t, tag.SOPInstanceUID, []string{"1.2.3.4"}),
		element(t, tag.AcquisitionDate, []string{"20100101"}),
		element(t, tag.AcquisitionTime, []string{"101500.25"}),
		element(t, tag.ImageLaterality, []string{"R"}),
		viewSequence(t, "medio-lateral oblique"),
	}}
}

func TestViewFromMeaning(t *testing.T) {
	cases := []struct {
		meaning string
		present bool
		want    ViewPosition
	}{
		{"cranio-caudal", true, CC},
		{"medio-lateral oblique", true, MLO},
		{"Cranio-Caudal", true, MLO},
		{"latero-medial", true, MLO},
		{"", false, ViewUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ViewFromMeaning(c.meaning, c.present), c.meaning)
	}
}

func TestParseLaterality(t *testing.T) {
	assert.Equal(t, Left, ParseLaterality("L"))
	assert.Equal(t, Right, ParseLaterality("R "))
	assert.Equal(t, LateralityUnknown, ParseLaterality("B"))
	assert.Equal(t, LateralityUnknown, ParseLaterality(""))
}

func TestExtract(t *testing.T) {
	ds := baseDataset(t)
	meta, err := Extract(&ds)
	require.NoError(t, err)

	assert.Equal(t, "D1-0001", meta.PatientID)
	assert.Equal(t, "F", meta.PatientSex)
	assert.Equal(t, "MG", meta.Modality)
	assert.Equal(t, Right, meta.Laterality)
	assert.Equal(t, MLO, meta.ViewPosition)
	assert.Nil(t, meta.InlineMasks)
	assert.Nil(t, meta.InlineLabels)
	assert.False(t, meta.HasInlineAnnotation())
	assert.Empty(t, meta.Missing)
}

func TestExtractCranioCaudal(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.ImageLaterality, []string{"L"}),
		viewSequence(t, "cranio-caudal"),
	}}
	meta, err := Extract(&ds)
	require.NoError(t, err)
	assert.Equal(t, Left, meta.Laterality)
	assert.Equal(t, CC, meta.ViewPosition)
}

func TestExtractMissingFields(t *testing.T) {
	ds := dicom.Dataset{}
	meta, err := Extract(&ds)
	require.NoError(t, err)

	assert.Equal(t, constants.Unknown, meta.PatientID)
	assert.Equal(t, constants.Unknown, meta.Modality)
	assert.Equal(t, LateralityUnknown, meta.Laterality)
	assert.Equal(t, ViewUnknown, meta.ViewPosition)
	assert.Contains(t, meta.Missing, "ImageLaterality")
	assert.Contains(t, meta.Missing, "ViewCodeSequence")
	assert.Contains(t, meta.Missing, "PatientSex")
}

func TestExtractLateralityFallback(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.Laterality, []string{"L"}),
	}}
	meta, err := Extract(&ds)
	require.NoError(t, err)
	assert.Equal(t, Left, meta.Laterality)
	assert.NotContains(t, meta.Missing, "ImageLaterality")
}

func TestExtractEmptyViewSequence(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.ViewCodeSequence, [][]*dicom.Element{}),
	}}
	meta, err := Extract(&ds)
	require.NoError(t, err)
	assert.Equal(t, ViewUnknown, meta.ViewPosition)
}

func TestExtractInlinePayload(t *testing.T) {
	for _, asBytes := range []bool{false, true} {
		ds := baseDataset(t)
		ds.Elements = append(ds.Elements,
			privateElement(t, MaskPayloadTag, maskPayload, asBytes),
			privateElement(t, LabelPayloadTag, `["mass", {"name":"calc"}]`, asBytes),
		)

		meta, err := Extract(&ds)
		require.NoError(t, err)
		require.True(t, meta.HasInlineAnnotation())

		masks := *meta.InlineMasks
		require.Len(t, masks, 2)
		assert.Equal(t, entities.Point2D{X: 20, Y: 10}, masks[0][1])
		assert.Equal(t, entities.Polygon{{X: 1.5, Y: 2.5}}, masks[1])
		assert.Equal(t, []string{"mass", `{"name":"calc"}`}, *meta.InlineLabels)
	}
}

func TestExtractInlinePayloadEmptyLists(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		privateElement(t, MaskPayloadTag, "[]", false),
		privateElement(t, LabelPayloadTag, "[] \x00", false),
	}}
	meta, err := Extract(&ds)
	require.NoError(t, err)
	require.NotNil(t, meta.InlineMasks)
	require.NotNil(t, meta.InlineLabels)
	assert.Len(t, *meta.InlineMasks, 0)
	assert.Len(t, *meta.InlineLabels, 0)
}

func TestExtractSinglePrivateTag(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		privateElement(t, MaskPayloadTag, maskPayload, false),
	}}
	meta, err := Extract(&ds)
	require.NoError(t, err)
	assert.Nil(t, meta.InlineMasks)
	assert.Nil(t, meta.InlineLabels)
}

func TestExtractCorruptPayload(t *testing.T) {
	{
		ds := baseDataset(t)
		ds.Elements = append(ds.Elements,
			privateElement(t, MaskPayloadTag, `[{"cgPoints": [`, false),
			privateElement(t, LabelPayloadTag, `["mass"]`, false),
		)
		_, err := Extract(&ds)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPayloadCorrupt))

		var payloadErr *PayloadError
		require.True(t, errors.As(err, &payloadErr))
		assert.Equal(t, MaskPayloadTag, payloadErr.Tag)
	}
	{
		ds := baseDataset(t)
		ds.Elements = append(ds.Elements,
			privateElement(t, MaskPayloadTag, `[]`, false),
			privateElement(t, LabelPayloadTag, `not json`, false),
		)
		_, err := Extract(&ds)
		var payloadErr *PayloadError
		require.True(t, errors.As(err, &payloadErr))
		assert.Equal(t, LabelPayloadTag, payloadErr.Tag)
	}
}

func TestReadUnreadable(t *testing.T) {
	extractor := NewExtractor(zap.NewNop())
	_, err := extractor.Read(filepath.Join(t.TempDir(), "missing.dcm"))
	assert.True(t, errors.Is(err, ErrUnreadable))
}

func TestPixelsMissing(t *testing.T) {
	ds := baseDataset(t)
	_, err := Pixels(&ds)
	assert.ErrorIs(t, err, ErrNoPixelData)
}

func TestAcquiredAt(t *testing.T) {
	{
		meta := DicomMetadata{AcquisitionDate: "20100101", AcquisitionTime: "101500.25"}
		at, ok := meta.AcquiredAt()
		require.True(t, ok)
		assert.Equal(t, time.Date(2010, 1, 1, 10, 15, 0, 250000000, time.UTC), at)
	}
	{
		meta := DicomMetadata{AcquisitionDate: "20100101", AcquisitionTime: "1015"}
		at, ok := meta.AcquiredAt()
		require.True(t, ok)
		assert.Equal(t, time.Date(2010, 1, 1, 10, 15, 0, 0, time.UTC), at)
	}
	{
		meta := DicomMetadata{AcquisitionDate: constants.Unknown, AcquisitionTime: "1015"}
		_, ok := meta.AcquiredAt()
		assert.False(t, ok)
	}
	{
		meta := DicomMetadata{AcquisitionDate: "20100101", AcquisitionTime: "10155"}
		_, ok := meta.AcquiredAt()
		assert.False(t, ok)
	}
}

// writeInstance stores a 3x2 16-bit mammogram carrying both private payload
// tags in the given transfer syntax and returns its path.
func writeInstance(t *testing.T, syntax string) string {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.1.2"}),
		element(t, tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4"}),
		element(t, tag.TransferSyntaxUID, []string{syntax}),
		element(t, tag.SOPInstanceUID, []string{"1.2.3.4"}),
		element(t, tag.StudyDate, []string{"20100101"}),
		element(t, tag.AcquisitionDate, []string{"20100101"}),
		element(t, tag.AcquisitionTime, []string{"101500"}),
		element(t, tag.Modality, []string{"MG"}),
		element(t, tag.PatientName, []string{"ANON^D1"}),
		element(t, tag.PatientID, []string{"D1-0001"}),
		element(t, tag.PatientSex, []string{"F"}),
		privateElement(t, MaskPayloadTag, maskPayload, false),
		privateElement(t, LabelPayloadTag, `["mass","calc"]`, false),
		element(t, tag.SeriesInstanceUID, []string{"1.2.3"}),
		element(t, tag.ImageLaterality, []string{"R"}),
		element(t, tag.SamplesPerPixel, []int{1}),
		element(t, tag.NumberOfFrames, []string{"1"}),
		element(t, tag.Rows, []int{2}),
		element(t, tag.Columns, []int{3}),
		element(t, tag.BitsAllocated, []int{16}),
		viewSequence(t, "medio-lateral oblique"),
		element(t, tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{
				NativeData: frame.NativeFrame{
					BitsPerSample: 16,
					Rows:          2,
					Cols:          3,
					Data:          [][]int{{0}, {100}, {200}, {300}, {400}, {1000}},
				},
			}},
		}),
	}}

	path := filepath.Join(t.TempDir(), "instance.dcm")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, dicom.Write(file, ds))
	return path
}

func TestReadInstanceFromFile(t *testing.T) {
	extractor := NewExtractor(zap.NewNop())
	for _, syntax := range []string{uid.ImplicitVRLittleEndian, uid.ExplicitVRLittleEndian} {
		path := writeInstance(t, syntax)

		meta, err := extractor.Read(path)
		require.NoError(t, err, syntax)
		assert.Equal(t, path, meta.Path)
		assert.Equal(t, Right, meta.Laterality, syntax)
		assert.Equal(t, MLO, meta.ViewPosition, syntax)
		assert.Equal(t, "D1-0001", meta.PatientID, syntax)
		assert.Empty(t, meta.Missing, syntax)
		require.True(t, meta.HasInlineAnnotation(), syntax)
		assert.Len(t, *meta.InlineMasks, 2, syntax)
		assert.Equal(t, []string{"mass", "calc"}, *meta.InlineLabels, syntax)

		pixels, err := extractor.ReadPixels(path)
		require.NoError(t, err, syntax)
		assert.Equal(t, 3, pixels.Width, syntax)
		assert.Equal(t, 2, pixels.Height, syntax)
		assert.Equal(t, []int{0, 100, 200, 300, 400, 1000}, pixels.Values, syntax)
	}
}
