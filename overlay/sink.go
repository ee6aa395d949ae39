package overlay

import (
	"context"
	"os"
	"path/filepath"
)

// Sink persists a rendered raster under name and returns where it went.
// An existing raster with the same name is overwritten.
type Sink interface {
	Put(ctx context.Context, name string, raster []byte) (string, error)
}

type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (sink *FileSink) Put(ctx context.Context, name string, raster []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(sink.dir, 0755); err != nil {
		return "", err
	}

	target := filepath.Join(sink.dir, name)
	tmp, err := os.CreateTemp(sink.dir, ".overlay-*")
	if err != nil {
		return "", err
	}
	_, err = tmp.Write(raster)
	if err == nil {
		err = tmp.Chmod(0644)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return target, nil
}
