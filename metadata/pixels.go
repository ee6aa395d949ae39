package metadata

import (
	"errors"
	"fmt"

	"mammo-overlay/entities"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var ErrNoPixelData = errors.New("instance has no pixel data")

// ReadPixels decodes the first frame of the instance at path. Compressed
// transfer syntaxes are whatever the dicom library can turn into an image.
func (extractor *Extractor) ReadPixels(path string) (entities.Grayscale, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return entities.Grayscale{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return Pixels(&ds)
}

func Pixels(ds *dicom.Dataset) (entities.Grayscale, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil || elem.Value == nil || elem.Value.ValueType() != dicom.PixelData {
		return entities.Grayscale{}, ErrNoPixelData
	}

	info := dicom.MustGetPixelDataInfo(elem.Value)
	if len(info.Frames) == 0 {
		return entities.Grayscale{}, ErrNoPixelData
	}

	fr := info.Frames[0]
	img, err := fr.GetImage()
	if err != nil {
		return entities.Grayscale{}, fmt.Errorf("decode frame: %w", err)
	}
	return entities.GrayscaleFromImage(img), nil
}
