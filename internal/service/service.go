package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"CapIot.ixonsync/internal/ixon"
	"CapIot.ixonsync/internal/models"
)

// timeColumn is the first column of every export.
const timeColumn = "time"

// Exporter is one run's view of the IXON API. Implementations fetch each
// token at most once.
type Exporter interface {
	ListTags(ctx context.Context) ([]models.Tag, error)
	ExportCSV(ctx context.Context, since string, tags ...models.Tag) (string, error)
}

// SessionFactory opens a fresh Exporter for every run.
type SessionFactory func() Exporter

// IxonSessions adapts an ixon.Client to a SessionFactory.
func IxonSessions(client *ixon.Client) SessionFactory {
	return func() Exporter {
		return client.NewSession()
	}
}

func newReport(pipeline string, now time.Time) *models.SyncReport {
	return &models.SyncReport{
		RunID:     uuid.NewString(),
		Pipeline:  pipeline,
		StartedAt: now,
		Status:    models.StatusOK,
	}
}

func finish(report *models.SyncReport, now time.Time) models.SyncReport {
	report.DurationMs = now.Sub(report.StartedAt).Milliseconds()
	return *report
}
