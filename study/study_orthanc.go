package study

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mammo-overlay/constants"
	"mammo-overlay/entities"
	"mammo-overlay/utils"

	"github.com/dustin/go-humanize"
	"github.com/gojektech/heimdall/v6/httpclient"
	"go.uber.org/zap"
)

type kvStr2Inf = map[string]interface{}

// OrthancSource pulls the instances of a series from Orthanc into
// {cacheDir}/{seriesUID}/{SOPInstanceUID}.dcm and then lists that directory
// like DirSource. Files already in the cache are not downloaded again.
type OrthancSource struct {
	uri        string
	cacheDir   string
	httpClient *httpclient.Client
	logger     *zap.Logger
}

// NewOrthancSource bounds every Orthanc request by timeout; a zero timeout
// falls back to 30s.
func NewOrthancSource(uri, cacheDir string, timeout time.Duration, logger *zap.Logger) *OrthancSource {
	if timeout <= 0 {
		timeout = 30000 * time.Millisecond
	}

	httpClient := httpclient.NewClient(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithHTTPTimeout(timeout),
		httpclient.WithRetryCount(3),
	)

	return &OrthancSource{
		uri:        uri,
		cacheDir:   cacheDir,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (orthanc *OrthancSource) Instances(ctx context.Context, seriesUID string) ([]string, error) {
	orthancSeriesID, err := orthanc.FindSeries(ctx, seriesUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSeriesUnavailable, seriesUID, err)
	}

	instances, err := orthanc.GetInstancesBySeries(ctx, orthancSeriesID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSeriesUnavailable, seriesUID, err)
	}

	dir := filepath.Join(orthanc.cacheDir, seriesUID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	for _, instance := range instances {
		name := instance.MainDicomTags.SOPInstanceUID
		if name == "" {
			name = instance.ID
		}
		target := filepath.Join(dir, name+constants.DicomExt)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := orthanc.DownloadInstance(ctx, instance.ID, target); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSeriesUnavailable, seriesUID, err)
		}
	}

	return utils.ListFiles(dir, constants.DicomExt)
}

// FindSeries returns the Orthanc identifier of a SeriesInstanceUID.
func (orthanc *OrthancSource) FindSeries(ctx context.Context, seriesUID string) (string, error) {
	var buf bytes.Buffer
	body := &kvStr2Inf{
		"Level": "Series",
		"Limit": 100,
		"Query": kvStr2Inf{
			"SeriesInstanceUID": seriesUID,
		},
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("Error encoding query: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/tools/find", orthanc.uri), &buf)
	if err != nil {
		return "", err
	}
	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.New(res.Status)
	}

	series := make([]string, 0)
	if err := json.NewDecoder(res.Body).Decode(&series); err != nil {
		return "", fmt.Errorf("Error parsing the response body: %s", err)
	}

	if len(series) == 0 {
		return "", errors.New("series not found in Orthanc")
	}
	if len(series) > 1 {
		orthanc.logger.Warn("series uid maps to several Orthanc series, using the first",
			zap.String("series", seriesUID), zap.Strings("orthanc_ids", series))
	}
	return series[0], nil
}

func (orthanc *OrthancSource) GetInstancesBySeries(ctx context.Context, orthancSeriesID string) ([]entities.OrthancInstance, error) {
	uri := fmt.Sprintf("%s/series/%s/instances", orthanc.uri, orthancSeriesID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}

	instances := make([]entities.OrthancInstance, 0)
	if err := json.NewDecoder(res.Body).Decode(&instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// DownloadInstance writes the raw DICOM file of an Orthanc instance to
// target through a temporary file in the same directory.
func (orthanc *OrthancSource) DownloadInstance(ctx context.Context, orthancInstanceID, target string) error {
	uri := fmt.Sprintf("%s/instances/%s/file", orthanc.uri, orthancInstanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.New(res.Status)
	}

	out, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return err
	}
	size, err := io.Copy(out, res.Body)
	if err == nil {
		err = out.Chmod(0644)
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out.Name())
		return err
	}

	orthanc.logger.Debug("instance downloaded",
		zap.String("instance", orthancInstanceID),
		zap.String("size", humanize.Bytes(uint64(size))))
	return os.Rename(out.Name(), target)
}
