package api

import (
	"context"
	"net/http"
	"sync"

	"mammo-overlay/constants"
	"mammo-overlay/entities"
	"mammo-overlay/report"
	"mammo-overlay/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Archive serves diagnostics of runs that are no longer held in memory.
type Archive interface {
	Diagnostics(ctx context.Context, runID, kind string, size int) ([]report.Diagnostic, error)
}

// Runner is the part of the pipeline the HTTP surface drives.
type Runner interface {
	Run(ctx context.Context, runID string) (*report.Report, error)
}

type RunAPI struct {
	runner  Runner
	archive Archive
	logger  *zap.Logger

	mu      sync.RWMutex
	runs    map[string]*report.Report
	current string
	wg      sync.WaitGroup
}

// NewRunAPI builds the run endpoints; archive may be nil.
func NewRunAPI(runner Runner, archive Archive, logger *zap.Logger) (app *RunAPI) {
	app = &RunAPI{
		runner:  runner,
		archive: archive,
		logger:  logger,
		runs:    make(map[string]*report.Report),
	}
	return app
}

func (app *RunAPI) InitRoute(engine *gin.Engine, path string) {
	group := engine.Group(path)
	group.POST("", app.CreateRun)
	group.GET("/:id", app.GetRun)
	group.GET("/:id/diagnostics", app.GetDiagnostics)
}

// CreateRun starts a batch in the background. Only one run is active at a
// time since runs share the output namespace.
func (app *RunAPI) CreateRun(c *gin.Context) {
	resp := entities.NewResponse()

	app.mu.Lock()
	if current := app.current; current != "" {
		app.mu.Unlock()
		resp.ErrorCode = constants.ServerBusy
		resp.Data = map[string]interface{}{constants.ParamID: current}
		c.JSON(http.StatusConflict, resp)
		return
	}
	runID := uuid.New().String()
	app.current = runID
	app.runs[runID] = &report.Report{
		RunID:   runID,
		Status:  constants.RunStatusRunning,
		Started: utils.NowMillis(),
	}
	app.wg.Add(1)
	app.mu.Unlock()

	go app.execute(runID)

	resp.Data = map[string]interface{}{constants.ParamID: runID}
	c.JSON(http.StatusAccepted, resp)
}

func (app *RunAPI) execute(runID string) {
	defer app.wg.Done()

	rep, err := app.runner.Run(context.Background(), runID)
	if err != nil {
		app.logger.Error("run failed", zap.String("run", runID), zap.Error(err))
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	if rep != nil {
		app.runs[runID] = rep
	} else {
		app.runs[runID].Status = constants.RunStatusFailed
	}
	app.current = ""
}

// Current returns the id of the active run, if any.
func (app *RunAPI) Current() string {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.current
}

// Wait blocks until background runs have finished.
func (app *RunAPI) Wait() {
	app.wg.Wait()
}

func (app *RunAPI) lookup(c *gin.Context) (report.Report, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	rep, found := app.runs[c.Param(constants.ParamID)]
	if !found {
		return report.Report{}, false
	}
	return *rep, true
}

func (app *RunAPI) GetRun(c *gin.Context) {
	resp := entities.NewResponse()

	rep, found := app.lookup(c)
	if !found {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	resp.Data = rep
	c.JSON(http.StatusOK, resp)
}

func (app *RunAPI) GetDiagnostics(c *gin.Context) {
	resp := entities.NewResponse()

	kind := c.Query("kind")
	rep, found := app.lookup(c)
	if !found {
		app.archived(c, kind)
		return
	}

	diagnostics := rep.Diagnostics
	if kind != "" {
		filtered := make([]report.Diagnostic, 0)
		for _, diagnostic := range diagnostics {
			if diagnostic.Kind == kind {
				filtered = append(filtered, diagnostic)
			}
		}
		diagnostics = filtered
	}
	if diagnostics == nil {
		diagnostics = make([]report.Diagnostic, 0)
	}

	resp.Data = diagnostics
	resp.Count = len(diagnostics)
	c.JSON(http.StatusOK, resp)
}

func (app *RunAPI) archived(c *gin.Context, kind string) {
	resp := entities.NewResponse()
	if app.archive == nil {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	runID := c.Param(constants.ParamID)
	diagnostics, err := app.archive.Diagnostics(c.Request.Context(), runID, kind, constants.DefaultLimit)
	if err != nil {
		app.logger.Error("cannot search archived diagnostics", zap.String("run", runID), zap.Error(err))
		resp.ErrorCode = constants.ServerError
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	if len(diagnostics) == 0 {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	resp.Data = diagnostics
	resp.Count = len(diagnostics)
	c.JSON(http.StatusOK, resp)
}
