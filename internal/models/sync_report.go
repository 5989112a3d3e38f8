package models

import "time"

// Pipeline names, also used in trigger routes and report keys.
const (
	PipelineCSV    = "csv"
	PipelineInflux = "influx"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// SyncReport summarises one pipeline run.
type SyncReport struct {
	RunID      string       `json:"runId"`
	Pipeline   string       `json:"pipeline"`
	StartedAt  time.Time    `json:"startedAt"`
	DurationMs int64        `json:"durationMs"`
	Status     string       `json:"status"`
	Cursor     string       `json:"cursor,omitempty"`
	FullReload bool         `json:"fullReload,omitempty"`
	RowsBefore int          `json:"rowsBefore,omitempty"`
	RowsAdded  int          `json:"rowsAdded"`
	RowsTotal  int          `json:"rowsTotal,omitempty"`
	Tags       []TagReport  `json:"tags,omitempty"`
	Errors     []StageError `json:"errors,omitempty"`
}

// TagReport is the per-tag outcome of the InfluxDB pipeline.
type TagReport struct {
	Tag    string `json:"tag"`
	Cursor string `json:"cursor"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// StageError records a failed stage by its static log message.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Fail records a stage failure.
func (r *SyncReport) Fail(stage string, err error) {
	r.Errors = append(r.Errors, StageError{Stage: stage, Message: err.Error()})
}
