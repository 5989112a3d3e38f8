package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.ixonsync/internal/logger"
	"CapIot.ixonsync/internal/middleware"
	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/repository"
	"CapIot.ixonsync/internal/service"
	"CapIot.ixonsync/internal/utils"
)

// SyncRunner is what the controller needs from service.Runner.
type SyncRunner interface {
	Run(ctx context.Context, name string) (models.SyncReport, error)
	LastReport(ctx context.Context, name string) (models.SyncReport, error)
}

// SyncController handles HTTP requests that trigger and inspect sync runs.
type SyncController struct {
	runner SyncRunner
	log    *logger.Logger
}

// NewSyncController creates a new SyncController.
func NewSyncController(runner SyncRunner, log *logger.Logger) *SyncController {
	return &SyncController{runner: runner, log: log}
}

// HandleSync runs the pipeline named in the path and answers with its
// report. A run whose stages failed is still a 200: the report says so.
func (c *SyncController) HandleSync(w http.ResponseWriter, r *http.Request) {
	pipeline := mux.Vars(r)["pipeline"]
	c.log.Infow("sync triggered", "pipeline", pipeline, "remote", r.RemoteAddr, "subject", middleware.Subject(r))

	report, err := c.runner.Run(r.Context(), pipeline)
	if err != nil {
		c.respondError(w, pipeline, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, report)
}

// HandleStatus returns the last stored report of a pipeline.
func (c *SyncController) HandleStatus(w http.ResponseWriter, r *http.Request) {
	pipeline := mux.Vars(r)["pipeline"]

	report, err := c.runner.LastReport(r.Context(), pipeline)
	if err != nil {
		c.respondError(w, pipeline, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, report)
}

// HandleHealth reports that the process is up.
func (c *SyncController) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (c *SyncController) respondError(w http.ResponseWriter, pipeline string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownPipeline):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeUnknownPipeline,
			fmt.Sprintf("pipeline %q is not configured", pipeline), nil, http.StatusNotFound))
	case errors.Is(err, repository.ErrReportNotFound):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeNotFound,
			fmt.Sprintf("no report stored for pipeline %q", pipeline), nil, http.StatusNotFound))
	case errors.Is(err, service.ErrNoReportStore):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeServiceUnavailable,
			"run reports are not kept, set REDIS_ADDR", nil, http.StatusServiceUnavailable))
	default:
		c.log.Errorw("request failed", "pipeline", pipeline, "err", err)
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInternalServerError,
			err.Error(), nil, http.StatusInternalServerError))
	}
}
