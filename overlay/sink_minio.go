package overlay

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

type MinIOSink struct {
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger

	bucketOnce sync.Once
	bucketErr  error
}

func NewMinIOSink(minioClient *minio.Client, bucketName string, logger *zap.Logger) *MinIOSink {
	return &MinIOSink{
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

func (sink *MinIOSink) ensureBucket(ctx context.Context) error {
	sink.bucketOnce.Do(func() {
		err := sink.minioClient.MakeBucket(ctx, sink.bucketName, minio.MakeBucketOptions{})
		if err == nil {
			sink.logger.Info("bucket created", zap.String("bucket", sink.bucketName))
			return
		}
		// Owning the bucket already is fine.
		exists, errBucketExists := sink.minioClient.BucketExists(ctx, sink.bucketName)
		if errBucketExists == nil && exists {
			return
		}
		sink.bucketErr = err
	})
	return sink.bucketErr
}

func (sink *MinIOSink) Put(ctx context.Context, name string, raster []byte) (string, error) {
	if err := sink.ensureBucket(ctx); err != nil {
		return "", err
	}

	info, err := sink.minioClient.PutObject(ctx, sink.bucketName, name, bytes.NewReader(raster), int64(len(raster)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", err
	}

	sink.logger.Debug("overlay uploaded",
		zap.String("object", name),
		zap.String("size", humanize.Bytes(uint64(info.Size))))
	return fmt.Sprintf("s3://%s/%s", sink.bucketName, name), nil
}
