package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"mammo-overlay/constants"
	"mammo-overlay/entities"

	"github.com/fogleman/gg"
)

var (
	ErrEmptyPolygon = entities.ErrEmptyPolygon
	ErrStyle        = errors.New("invalid overlay style")
)

// Style is the single outline style used for every polygon.
type Style struct {
	Color       string  `json:"color"`
	LineWidth   float64 `json:"line_width"`
	PointRadius float64 `json:"point_radius"`
}

func DefaultStyle() Style {
	return Style{
		Color:       constants.DefaultColor,
		LineWidth:   constants.DefaultLineWidth,
		PointRadius: constants.DefaultPointRadius,
	}
}

func (style Style) Validate() error {
	hex := strings.TrimPrefix(style.Color, "#")
	if len(hex) != 3 && len(hex) != 6 && len(hex) != 8 {
		return fmt.Errorf("%w: color %q", ErrStyle, style.Color)
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return fmt.Errorf("%w: color %q", ErrStyle, style.Color)
	}
	if style.LineWidth <= 0 || style.PointRadius <= 0 {
		return fmt.Errorf("%w: line width %v, point radius %v", ErrStyle, style.LineWidth, style.PointRadius)
	}
	return nil
}

// Render draws the polygons as closed outlines over the grayscale matrix and
// returns PNG bytes of exactly the matrix dimensions. Pixel (i, j) is
// centred on coordinate (i, j) like the annotation tool displays it.
func Render(pixels entities.Grayscale, polygons []entities.Polygon, style Style) ([]byte, error) {
	if err := pixels.Validate(); err != nil {
		return nil, err
	}
	if err := style.Validate(); err != nil {
		return nil, err
	}
	for i, polygon := range polygons {
		if len(polygon) == 0 {
			return nil, fmt.Errorf("polygon %d: %w", i, ErrEmptyPolygon)
		}
	}

	dc := gg.NewContextForRGBA(grayToRGBA(pixels))
	dc.SetHexColor(style.Color)
	dc.SetLineWidth(style.LineWidth)

	for _, polygon := range polygons {
		points, _ := polygon.Closed()
		if len(polygon) == 1 {
			dc.DrawPoint(points[0].X+0.5, points[0].Y+0.5, style.PointRadius)
			dc.Fill()
			continue
		}
		dc.NewSubPath()
		dc.MoveTo(points[0].X+0.5, points[0].Y+0.5)
		for _, point := range points[1:] {
			dc.LineTo(point.X+0.5, point.Y+0.5)
		}
		dc.Stroke()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// grayToRGBA scales min..max of the matrix onto 0..255.
func grayToRGBA(pixels entities.Grayscale) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, pixels.Width, pixels.Height))
	lo, hi := pixels.Range()
	span := hi - lo

	for y := 0; y < pixels.Height; y++ {
		for x := 0; x < pixels.Width; x++ {
			var level uint8
			if span > 0 {
				level = uint8((pixels.At(x, y) - lo) * 255 / span)
			}
			img.SetRGBA(x, y, color.RGBA{R: level, G: level, B: level, A: 0xff})
		}
	}
	return img
}
