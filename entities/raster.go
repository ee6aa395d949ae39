package entities

import (
	"errors"
	"image"
	"image/color"
)

var ErrEmptyRaster = errors.New("pixel matrix is empty")

// Grayscale is a decoded single-channel pixel matrix in row-major order.
type Grayscale struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Values []int `json:"-"`
}

func NewGrayscale(width, height int) Grayscale {
	return Grayscale{
		Width:  width,
		Height: height,
		Values: make([]int, width*height),
	}
}

func (gray Grayscale) At(x, y int) int {
	return gray.Values[y*gray.Width+x]
}

func (gray Grayscale) Set(x, y, value int) {
	gray.Values[y*gray.Width+x] = value
}

func (gray Grayscale) Validate() error {
	if gray.Width <= 0 || gray.Height <= 0 || len(gray.Values) != gray.Width*gray.Height {
		return ErrEmptyRaster
	}
	return nil
}

// Range returns the smallest and largest stored value.
func (gray Grayscale) Range() (int, int) {
	if len(gray.Values) == 0 {
		return 0, 0
	}
	lo, hi := gray.Values[0], gray.Values[0]
	for _, v := range gray.Values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// GrayscaleFromImage reads every pixel through the 16-bit gray model so
// 8-bit, 16-bit and decoded JPEG frames land on one scale.
func GrayscaleFromImage(img image.Image) Grayscale {
	bounds := img.Bounds()
	gray := NewGrayscale(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			gray.Set(x-bounds.Min.X, y-bounds.Min.Y, int(c.Y))
		}
	}
	return gray
}
