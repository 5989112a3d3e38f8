package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"CapIot.ixonsync/internal/logger"
	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/service"
)

type stubPipeline struct {
	status string
	runs   int
}

func (p *stubPipeline) Run(ctx context.Context) models.SyncReport {
	p.runs++
	return models.SyncReport{Pipeline: models.PipelineCSV, Status: p.status}
}

func TestRunOnceExitCodes(t *testing.T) {
	failed := &stubPipeline{status: models.StatusFailed}
	runner := service.NewRunner(map[string]service.Pipeline{models.PipelineCSV: failed}, nil, nil, logger.Nop())

	assert.Equal(t, 0, runOnce(context.Background(), runner, models.PipelineCSV, logger.Nop()))
	assert.Equal(t, 1, failed.runs)

	assert.Equal(t, 1, runOnce(context.Background(), runner, "parquet", logger.Nop()))
	assert.Equal(t, 1, failed.runs)
}
