package pipeline

import (
	"context"
	"path/filepath"

	"mammo-overlay/annotation"
	"mammo-overlay/overlay"

	"go.uber.org/zap"
)

// OverlayOne renders the polygons of one annotation file over one instance
// and writes the PNG to outputPath. No name parsing or matching is involved.
func OverlayOne(ctx context.Context, reader Reader, dicomPath, annotationPath, outputPath string,
	style overlay.Style, logger *zap.Logger) (string, error) {
	polygons, err := annotation.ReadPolygons(annotationPath)
	if err != nil {
		return "", err
	}
	pixels, err := reader.ReadPixels(dicomPath)
	if err != nil {
		return "", err
	}
	raster, err := overlay.Render(pixels, polygons, style)
	if err != nil {
		return "", err
	}

	sink := overlay.NewFileSink(filepath.Dir(outputPath))
	location, err := sink.Put(ctx, filepath.Base(outputPath), raster)
	if err != nil {
		return "", err
	}
	logger.Info("overlay written",
		zap.String("instance", dicomPath),
		zap.String("annotation", annotationPath),
		zap.Int("polygons", len(polygons)),
		zap.String("output", location))
	return location, nil
}
