package entities

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrayscaleRange(t *testing.T) {
	gray := NewGrayscale(3, 2)
	gray.Set(0, 0, 40)
	gray.Set(2, 1, 4095)
	gray.Set(1, 1, -3)

	lo, hi := gray.Range()
	assert.Equal(t, -3, lo)
	assert.Equal(t, 4095, hi)
	assert.Equal(t, 4095, gray.At(2, 1))
	assert.NoError(t, gray.Validate())
}

func TestGrayscaleValidate(t *testing.T) {
	assert.ErrorIs(t, Grayscale{}.Validate(), ErrEmptyRaster)
	assert.ErrorIs(t, Grayscale{Width: 2, Height: 2, Values: []int{1}}.Validate(), ErrEmptyRaster)
}

func TestGrayscaleFromImage(t *testing.T) {
	img := image.NewGray16(image.Rect(10, 20, 14, 23))
	img.SetGray16(13, 22, color.Gray16{Y: 1000})

	gray := GrayscaleFromImage(img)
	assert.Equal(t, 4, gray.Width)
	assert.Equal(t, 3, gray.Height)
	assert.Equal(t, 1000, gray.At(3, 2))
	assert.Equal(t, 0, gray.At(0, 0))
}
