package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"CapIot.ixonsync/internal/logger"
	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/observability"
	"CapIot.ixonsync/internal/repository"
)

// ErrUnknownPipeline is returned for a pipeline name that is not configured.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// ErrNoReportStore is returned by LastReport when reports are not kept.
var ErrNoReportStore = errors.New("no report store configured")

// Pipeline is one sync variant.
type Pipeline interface {
	Run(ctx context.Context) models.SyncReport
}

// Runner triggers pipelines by name. Concurrent triggers of the same
// pipeline share a single run and its report.
type Runner struct {
	pipelines map[string]Pipeline
	reports   repository.ReportStore
	metrics   *observability.Metrics
	log       *logger.Logger
	group     singleflight.Group
}

// NewRunner takes optional reports and metrics; nil disables them.
func NewRunner(pipelines map[string]Pipeline, reports repository.ReportStore, metrics *observability.Metrics, log *logger.Logger) *Runner {
	return &Runner{pipelines: pipelines, reports: reports, metrics: metrics, log: log}
}

func (r *Runner) Has(name string) bool {
	_, ok := r.pipelines[name]
	return ok
}

// Run executes the named pipeline, or joins a run already in progress.
func (r *Runner) Run(ctx context.Context, name string) (models.SyncReport, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return models.SyncReport{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}

	v, _, _ := r.group.Do(name, func() (interface{}, error) {
		// A run is not tied to the request that started it.
		report := p.Run(context.WithoutCancel(ctx))
		r.metrics.ObserveRun(report)
		r.log.Infow("sync finished",
			"pipeline", report.Pipeline,
			"run_id", report.RunID,
			"status", report.Status,
			"rows", report.RowsAdded,
			"duration_ms", report.DurationMs)
		if r.reports != nil {
			if err := r.reports.Save(context.WithoutCancel(ctx), report); err != nil {
				r.log.Warnw("could not store sync report", "pipeline", name, "err", err)
			}
		}
		return report, nil
	})
	return v.(models.SyncReport), nil
}

// LastReport returns the stored report of the last run of a pipeline.
func (r *Runner) LastReport(ctx context.Context, name string) (models.SyncReport, error) {
	if !r.Has(name) {
		return models.SyncReport{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}
	if r.reports == nil {
		return models.SyncReport{}, ErrNoReportStore
	}
	return r.reports.Last(ctx, name)
}

// MetricsHandler serves the run metrics, or is nil without metrics.
func (r *Runner) MetricsHandler() http.Handler {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.Handler()
}
