package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mammo-overlay/entities"
	"mammo-overlay/utils"

	"github.com/dustin/go-humanize"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"go.uber.org/zap"
)

const bulkBatch = 100

// ESStore indexes the run summary into {prefix}_{yyyymm} and its diagnostics
// into {prefix}_diagnostics_{yyyymm}.
type ESStore struct {
	esClient    *elasticsearch.Client
	indexPrefix string
	logger      *zap.Logger
}

func NewESStore(es *elasticsearch.Client, indexPrefix string, logger *zap.Logger) *ESStore {
	return &ESStore{
		es, indexPrefix, logger,
	}
}

func indexName(prefix string, created int64) string {
	indexTime := utils.ConvertTimeStampToTime(created)
	return fmt.Sprintf("%s_%d%02d", prefix, indexTime.Year(), indexTime.Month())
}

// summary is the report document without the per-item arrays, which can be
// large and are indexed separately.
type summary struct {
	RunID    string         `json:"id"`
	Status   string         `json:"status"`
	Started  int64          `json:"started"`
	Finished int64          `json:"finished"`
	Error    string         `json:"error,omitempty"`
	Outputs  []string       `json:"outputs"`
	Counts   map[string]int `json:"counts"`
}

func (store *ESStore) Save(ctx context.Context, report Report) error {
	if err := store.create(ctx, report); err != nil {
		return err
	}
	if len(report.Diagnostics) == 0 {
		return nil
	}
	return store.bulk(ctx, indexName(store.indexPrefix+"_diagnostics", report.Started), report.Diagnostics)
}

func (store *ESStore) create(ctx context.Context, report Report) error {
	doc := summary{
		RunID:    report.RunID,
		Status:   report.Status,
		Started:  report.Started,
		Finished: report.Finished,
		Error:    report.Error,
		Outputs:  make([]string, 0, len(report.Outputs)),
		Counts:   report.Counts,
	}
	for _, output := range report.Outputs {
		doc.Outputs = append(doc.Outputs, output.Location)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName(store.indexPrefix, report.Started),
		DocumentID: report.RunID,
		Body:       strings.NewReader(string(body)),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, store.esClient.Transport)
	if err != nil {
		return fmt.Errorf("IndexRequest ERROR: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		var esError entities.ESError
		if err := json.NewDecoder(res.Body).Decode(&esError); err != nil {
			return fmt.Errorf("%s ERROR indexing report ID=%s", res.Status(), report.RunID)
		}
		return fmt.Errorf("[%s] %s: %s", res.Status(), esError.Error.Type, esError.Error.Reason)
	}
	return nil
}

func (store *ESStore) bulk(ctx context.Context, index string, diagnostics []Diagnostic) error {
	var (
		buf bytes.Buffer

		numErrors  int
		numIndexed int
	)
	es := store.esClient
	start := time.Now().UTC()

	flush := func() error {
		res, err := es.Bulk(bytes.NewReader(buf.Bytes()),
			es.Bulk.WithContext(ctx),
			es.Bulk.WithIndex(index),
			es.Bulk.WithRefresh("true"))
		buf.Reset()
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.IsError() {
			var esError entities.ESError
			if err := json.NewDecoder(res.Body).Decode(&esError); err != nil {
				return fmt.Errorf("%s ERROR bulk indexing diagnostics", res.Status())
			}
			return fmt.Errorf("[%s] %s: %s", res.Status(), esError.Error.Type, esError.Error.Reason)
		}

		var blk entities.ESBulkResponse
		if err := json.NewDecoder(res.Body).Decode(&blk); err != nil {
			return fmt.Errorf("Error parsing the response body: %w", err)
		}
		for _, d := range blk.Items {
			if d.Index.Status > 201 {
				numErrors++
				store.logger.Warn("diagnostic not indexed",
					zap.String("id", d.Index.ID),
					zap.String("type", d.Index.Error.Type),
					zap.String("reason", d.Index.Error.Reason))
			} else {
				numIndexed++
			}
		}
		return nil
	}

	for i, diagnostic := range diagnostics {
		meta := []byte(fmt.Sprintf(`{ "index" : { "_id" : "%s" } }%s`, diagnostic.ID, "\n"))
		data, err := json.Marshal(diagnostic)
		if err != nil {
			return err
		}
		data = append(data, "\n"...)

		buf.Grow(len(meta) + len(data))
		buf.Write(meta)
		buf.Write(data)

		if (i+1)%bulkBatch == 0 || i == len(diagnostics)-1 {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	dur := time.Since(start)
	store.logger.Info("diagnostics indexed",
		zap.String("index", index),
		zap.String("indexed", humanize.Comma(int64(numIndexed))),
		zap.String("errors", humanize.Comma(int64(numErrors))),
		zap.Duration("took", dur.Truncate(time.Millisecond)))

	if numErrors > 0 {
		return fmt.Errorf("%d of %d diagnostics failed to index", numErrors, len(diagnostics))
	}
	return nil
}

// Diagnostics searches the archived diagnostics of a run, optionally only
// those of one kind, oldest first.
func (store *ESStore) Diagnostics(ctx context.Context, runID, kind string, size int) ([]Diagnostic, error) {
	es := store.esClient

	var buf bytes.Buffer
	body := utils.ConvertFiltersToESQueryBody(map[string]string{"run_id": runID, "kind": kind}, size, "created")
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("Error encoding query: %w", err)
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(store.indexPrefix+"_diagnostics_*"),
		es.Search.WithBody(&buf),
		es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		var esError entities.ESError
		if err := json.NewDecoder(res.Body).Decode(&esError); err != nil {
			return nil, fmt.Errorf("Error parsing the response body: %w", err)
		}
		return nil, fmt.Errorf("[%s] %s: %s", res.Status(), esError.Error.Type, esError.Error.Reason)
	}

	var esReturn entities.ESReturn
	if err := json.NewDecoder(res.Body).Decode(&esReturn); err != nil {
		return nil, fmt.Errorf("Error parsing the response body: %w", err)
	}
	store.logger.Debug("diagnostics searched",
		zap.String("run", runID),
		zap.Int("hits", esReturn.Hits.Total.Value),
		zap.Int("took_ms", esReturn.Took))

	diagnostics := make([]Diagnostic, 0, len(esReturn.Hits.Hits))
	for _, hit := range esReturn.Hits.Hits {
		var diagnostic Diagnostic
		if err := json.Unmarshal(hit.Source, &diagnostic); err == nil {
			diagnostics = append(diagnostics, diagnostic)
		}
	}
	return diagnostics, nil
}
