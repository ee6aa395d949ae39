package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mammo-overlay/annotation"
	"mammo-overlay/constants"
	"mammo-overlay/entities"
	"mammo-overlay/matcher"
	"mammo-overlay/metadata"
	"mammo-overlay/overlay"
	"mammo-overlay/report"
	"mammo-overlay/study"
	"mammo-overlay/utils"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reader reads instance metadata for matching and the pixel matrix of the
// matched instance.
type Reader interface {
	matcher.MetadataReader
	ReadPixels(path string) (entities.Grayscale, error)
}

type Runner struct {
	config Config
	source study.Source
	reader Reader
	sink   overlay.Sink
	store  report.Store
	lines  report.LineSink
	locker Locker
	logger *zap.Logger
}

// NewRunner wires the pipeline. store, lines and locker may be nil.
func NewRunner(config Config, source study.Source, reader Reader, sink overlay.Sink,
	store report.Store, lines report.LineSink, locker Locker, logger *zap.Logger) (*Runner, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		config: config,
		source: source,
		reader: reader,
		sink:   sink,
		store:  store,
		lines:  lines,
		locker: locker,
		logger: logger,
	}, nil
}

func (runner *Runner) Config() Config {
	return runner.config
}

// Run executes one batch. Per-unit problems end up as diagnostics in the
// returned report; the error is non-nil only when the run could not start
// or was cancelled.
func (runner *Runner) Run(ctx context.Context, runID string) (*report.Report, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := runner.logger.With(zap.String("run", runID))
	collector := report.NewCollector(runID, runner.lines, logger)
	rep := &report.Report{
		RunID:   runID,
		Status:  constants.RunStatusRunning,
		Started: utils.NowMillis(),
	}

	err := runner.run(ctx, collector, logger)

	collector.Fill(rep)
	rep.Finished = utils.NowMillis()
	rep.Status = constants.RunStatusDone
	if err != nil {
		rep.Status = constants.RunStatusFailed
		rep.Error = err.Error()
		logger.Error("run failed", zap.Error(err))
	}
	logger.Info("run finished",
		zap.String("status", rep.Status),
		zap.Int("outputs", len(rep.Outputs)),
		zap.Int("diagnostics", len(rep.Diagnostics)))

	if runner.store != nil {
		if saveErr := runner.store.Save(context.Background(), *rep); saveErr != nil {
			logger.Error("cannot save run report", zap.Error(saveErr))
		}
	}
	return rep, err
}

func (runner *Runner) run(ctx context.Context, collector *report.Collector, logger *zap.Logger) error {
	manifest, err := study.LoadManifest(runner.config.Manifest, runner.config.SubjectColumn, runner.config.SeriesColumn)
	if err != nil {
		return err
	}
	if len(manifest.Skipped) > 0 {
		logger.Warn("manifest rows skipped", zap.Ints("lines", manifest.Skipped))
	}

	index, seriesFailures, err := study.BuildIndex(ctx, manifest, runner.source, logger)
	if err != nil {
		return err
	}
	for _, failure := range seriesFailures {
		collector.Add(report.Diagnostic{
			Kind:    constants.DiagReadFailure,
			Subject: failure.SubjectID,
			Series:  failure.SeriesUID,
			Reason:  failure.Err.Error(),
		})
	}

	found, violations, err := annotation.NewStore(runner.config.AnnotationDir, logger).Scan()
	if err != nil {
		return fmt.Errorf("annotation directory %s: %w", runner.config.AnnotationDir, err)
	}
	for _, violation := range violations {
		diagnostic := report.Diagnostic{Kind: constants.DiagNamingConvention, Reason: violation.Error()}
		var namingErr *annotation.NamingError
		if errors.As(violation, &namingErr) {
			diagnostic.Annotation = namingErr.Name
		}
		collector.Add(diagnostic)
	}

	plan := matcher.BuildPlan(index, found)
	for _, subject := range plan.Unannotated {
		collector.Add(report.Diagnostic{
			Kind:    constants.DiagNoAnnotation,
			Subject: subject,
			Reason:  "no annotation file for subject",
		})
	}
	for _, orphan := range plan.Orphans {
		collector.Add(report.Diagnostic{
			Kind:       constants.DiagUnmatched,
			Subject:    orphan.SubjectID,
			Annotation: orphan.Path,
			Reason:     "subject not listed in manifest",
		})
	}

	return runner.process(ctx, plan.Units, collector, logger)
}

// process assigns output names in plan order between the concurrent match
// and write phases, so the earliest unit keeps a contested name.
func (runner *Runner) process(ctx context.Context, units []matcher.Unit, collector *report.Collector, logger *zap.Logger) error {
	policy, err := matcher.NewTieBreak(runner.config.TieBreak)
	if err != nil {
		return err
	}
	match := matcher.NewMatcher(runner.reader, policy, logger)

	results := make([]*matcher.MatchResult, len(units))
	logger.Info("units queued", zap.Int("units", len(units)), zap.Int("workers", runner.config.Workers))
	err = runner.fanOut(ctx, len(units), func(ctx context.Context, i int) {
		results[i] = runner.resolve(ctx, units[i], match, collector)
	})
	if err != nil {
		return err
	}

	owned := newClaims()
	winners := make([]int, 0, len(units))
	for i, result := range results {
		if result == nil {
			continue
		}
		unit := units[i]
		name := unit.Tokens.OutputName()
		if previous, ok := owned.claim(name, unit.Tokens.Path+" "+unit.Entry.SeriesUID); !ok {
			diagnose(unit, collector)(constants.DiagOutputCollision, result.InstancePath,
				fmt.Sprintf("%s already produced by %s", name, previous))
			continue
		}
		winners = append(winners, i)
	}

	err = runner.fanOut(ctx, len(winners), func(ctx context.Context, i int) {
		runner.write(ctx, units[winners[i]], *results[winners[i]], collector, logger)
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

// fanOut calls work for 0..n-1 from the configured number of workers. Workers
// drain a fully populated queue and stop when it is empty.
func (runner *Runner) fanOut(ctx context.Context, n int, work func(ctx context.Context, i int)) error {
	queue := goconcurrentqueue.NewFIFO()
	for i := 0; i < n; i++ {
		if err := queue.Enqueue(i); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for w := 0; w < runner.config.Workers; w++ {
		group.Go(func() error {
			for {
				item, err := queue.Dequeue()
				if err != nil {
					return nil
				}
				work(groupCtx, item.(int))
			}
		})
	}
	return group.Wait()
}

func diagnose(unit matcher.Unit, collector *report.Collector) func(kind, instance, reason string) {
	return func(kind, instance, reason string) {
		collector.Add(report.Diagnostic{
			Kind:       kind,
			Subject:    unit.Tokens.SubjectID,
			Series:     unit.Entry.SeriesUID,
			Annotation: unit.Tokens.Path,
			Instance:   instance,
			Reason:     reason,
		})
	}
}

// resolve loads the annotation of a unit and matches it against the series.
// It returns nil after recording a diagnostic when the unit cannot go on.
func (runner *Runner) resolve(ctx context.Context, unit matcher.Unit, match *matcher.Matcher,
	collector *report.Collector) *matcher.MatchResult {
	add := diagnose(unit, collector)

	if err := ctx.Err(); err != nil {
		add(constants.DiagCancelled, "", err.Error())
		return nil
	}

	record, err := annotation.LoadTokens(unit.Tokens)
	if err != nil {
		add(constants.DiagAnnotationLoadError, "", err.Error())
		return nil
	}

	outcome := match.Match(ctx, record, unit.Entry)
	for _, failure := range outcome.Failures {
		kind := constants.DiagReadFailure
		if errors.Is(failure.Err, metadata.ErrPayloadCorrupt) {
			kind = constants.DiagPayloadCorrupt
		}
		add(kind, failure.Path, failure.Err.Error())
	}
	if outcome.Ambiguous() {
		add(constants.DiagAmbiguous, "", fmt.Sprintf("%s: %d instances match: %s",
			match.Policy().Name(), len(outcome.Hits), strings.Join(outcome.Hits, ", ")))
	}

	switch {
	case outcome.Err == nil:
	case errors.Is(outcome.Err, context.Canceled), errors.Is(outcome.Err, context.DeadlineExceeded):
		add(constants.DiagCancelled, "", outcome.Err.Error())
		return nil
	case errors.Is(outcome.Err, matcher.ErrUnmatched):
		add(constants.DiagUnmatched, "", fmt.Sprintf("no instance with laterality %s and view %s among %d",
			record.EncodedLaterality, record.EncodedView, len(unit.Entry.Instances)))
		return nil
	case errors.Is(outcome.Err, matcher.ErrAmbiguous):
		return nil
	default:
		add(constants.DiagReadFailure, "", outcome.Err.Error())
		return nil
	}

	result := *outcome.Result
	if len(result.Metadata.Missing) > 0 {
		add(constants.DiagMetadataMissing, result.InstancePath, "missing "+strings.Join(result.Metadata.Missing, ", "))
	}
	return &result
}

func (runner *Runner) write(ctx context.Context, unit matcher.Unit, result matcher.MatchResult,
	collector *report.Collector, logger *zap.Logger) {
	add := diagnose(unit, collector)
	if err := ctx.Err(); err != nil {
		add(constants.DiagCancelled, result.InstancePath, err.Error())
		return
	}

	name := unit.Tokens.OutputName()
	location, kind, err := runner.produce(ctx, result, name)
	if err != nil {
		add(kind, result.InstancePath, err.Error())
		return
	}
	collector.Matched(result, report.Output{
		Name:     name,
		Location: location,
		Subject:  unit.Tokens.SubjectID,
		Instance: result.InstancePath,
	})
	logger.Info("overlay written",
		zap.String("subject", unit.Tokens.SubjectID),
		zap.String("instance", result.InstancePath),
		zap.String("output", location))
}

// produce renders and persists the overlay of a match. On failure it also
// returns the diagnostic kind describing the failed step.
func (runner *Runner) produce(ctx context.Context, result matcher.MatchResult, name string) (string, string, error) {
	if runner.locker != nil {
		unlock, err := runner.locker.Lock(ctx, name)
		if errors.Is(err, ErrOutputCollision) {
			return "", constants.DiagOutputCollision, err
		}
		if err != nil {
			return "", constants.DiagWriteFailure, err
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				runner.logger.Warn("cannot release output lock", zap.String("output", name), zap.Error(err))
			}
		}()
	}

	pixels, err := runner.reader.ReadPixels(result.InstancePath)
	if err != nil {
		return "", constants.DiagReadFailure, err
	}

	polygons := result.Annotation.Polygons
	if runner.config.RenderInline && result.Metadata.InlineMasks != nil {
		polygons = append(append([]entities.Polygon(nil), polygons...), *result.Metadata.InlineMasks...)
	}
	raster, err := overlay.Render(pixels, polygons, runner.config.Style)
	if err != nil {
		return "", constants.DiagRenderFailure, err
	}

	location, err := runner.sink.Put(ctx, name, raster)
	if err != nil {
		if ctx.Err() != nil {
			return "", constants.DiagCancelled, err
		}
		return "", constants.DiagWriteFailure, err
	}
	return location, "", nil
}
