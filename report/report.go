package report

import (
	"encoding/json"
	"sort"
	"sync"

	"mammo-overlay/matcher"
	"mammo-overlay/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Diagnostic records one unit that was skipped or degraded, and why.
type Diagnostic struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"`
	Subject    string `json:"subject,omitempty"`
	Series     string `json:"series,omitempty"`
	Annotation string `json:"annotation,omitempty"`
	Instance   string `json:"instance,omitempty"`
	Reason     string `json:"reason"`
	Created    int64  `json:"created"`
}

func (diagnostic *Diagnostic) String() string {
	b, _ := json.Marshal(diagnostic)
	return string(b)
}

func (diagnostic *Diagnostic) New(runID string) {
	diagnostic.ID = uuid.New().String()
	diagnostic.RunID = runID
	diagnostic.Created = utils.NowMillis()
}

type Output struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Subject  string `json:"subject"`
	Instance string `json:"instance"`
}

type Report struct {
	RunID       string                `json:"id"`
	Status      string                `json:"status"`
	Started     int64                 `json:"started"`
	Finished    int64                 `json:"finished,omitempty"`
	Error       string                `json:"error,omitempty"`
	Matched     []matcher.MatchResult `json:"matched"`
	Outputs     []Output              `json:"outputs"`
	Diagnostics []Diagnostic          `json:"diagnostics"`
	Counts      map[string]int        `json:"counts"`
}

func (report *Report) String() string {
	b, _ := json.Marshal(report)
	return string(b)
}

// Collector gathers the results of concurrent units. Every diagnostic is also
// forwarded to the optional line sink as soon as it is added.
type Collector struct {
	mu          sync.Mutex
	runID       string
	matched     []matcher.MatchResult
	outputs     []Output
	diagnostics []Diagnostic
	lines       LineSink
	logger      *zap.Logger
}

// LineSink receives diagnostics one by one while a run is in progress.
type LineSink interface {
	Append(diagnostic Diagnostic) error
}

func NewCollector(runID string, lines LineSink, logger *zap.Logger) *Collector {
	return &Collector{
		runID:       runID,
		matched:     make([]matcher.MatchResult, 0),
		outputs:     make([]Output, 0),
		diagnostics: make([]Diagnostic, 0),
		lines:       lines,
		logger:      logger,
	}
}

func (collector *Collector) Add(diagnostic Diagnostic) {
	diagnostic.New(collector.runID)

	collector.mu.Lock()
	collector.diagnostics = append(collector.diagnostics, diagnostic)
	collector.mu.Unlock()

	collector.logger.Warn(diagnostic.Reason,
		zap.String("kind", diagnostic.Kind),
		zap.String("subject", diagnostic.Subject),
		zap.String("series", diagnostic.Series),
		zap.String("annotation", diagnostic.Annotation),
		zap.String("instance", diagnostic.Instance))

	if collector.lines != nil {
		if err := collector.lines.Append(diagnostic); err != nil {
			collector.logger.Error("cannot append diagnostic", zap.Error(err))
		}
	}
}

func (collector *Collector) Matched(result matcher.MatchResult, output Output) {
	collector.mu.Lock()
	defer collector.mu.Unlock()
	collector.matched = append(collector.matched, result)
	collector.outputs = append(collector.outputs, output)
}

// Fill copies the gathered results into report in a stable order, whatever
// order the units finished in.
func (collector *Collector) Fill(report *Report) {
	collector.mu.Lock()
	defer collector.mu.Unlock()

	report.RunID = collector.runID
	report.Matched = append(make([]matcher.MatchResult, 0, len(collector.matched)), collector.matched...)
	report.Outputs = append(make([]Output, 0, len(collector.outputs)), collector.outputs...)
	report.Diagnostics = append(make([]Diagnostic, 0, len(collector.diagnostics)), collector.diagnostics...)

	sort.SliceStable(report.Matched, func(i, j int) bool {
		return report.Matched[i].InstancePath < report.Matched[j].InstancePath
	})
	sort.SliceStable(report.Outputs, func(i, j int) bool {
		return report.Outputs[i].Name < report.Outputs[j].Name
	})
	sort.SliceStable(report.Diagnostics, func(i, j int) bool {
		a, b := report.Diagnostics[i], report.Diagnostics[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Annotation != b.Annotation {
			return a.Annotation < b.Annotation
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		return a.Kind < b.Kind
	})

	report.Counts = make(map[string]int)
	for _, diagnostic := range report.Diagnostics {
		report.Counts[diagnostic.Kind]++
	}
}
