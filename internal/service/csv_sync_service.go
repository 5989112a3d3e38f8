package service

import (
	"context"
	"time"

	"CapIot.ixonsync/internal/logger"
	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/repository"
	"CapIot.ixonsync/internal/table"
)

// DefaultCSVCursor is where a sync starts when the object holds no rows.
const DefaultCSVCursor = "2019-07-01 00:00:00"

const csvContentType = "text/csv"

// CSVSyncService keeps one CSV object in sync with the device's export.
type CSVSyncService struct {
	sessions SessionFactory
	store    repository.ObjectStore
	log      *logger.Logger
	now      func() time.Time
}

func NewCSVSyncService(sessions SessionFactory, store repository.ObjectStore, log *logger.Logger) *CSVSyncService {
	return &CSVSyncService{sessions: sessions, store: store, log: log, now: time.Now}
}

// Cursor returns the lexical maximum of the time column, or the default
// when there is no table or it has no timestamps.
func Cursor(old *table.Table) string {
	if old == nil {
		return DefaultCSVCursor
	}
	if latest, ok := old.Max(timeColumn); ok {
		return latest
	}
	return DefaultCSVCursor
}

// Merge appends the fetched rows newer than cursor to old. With no old
// table the fetched text is returned unchanged.
func Merge(old *table.Table, cursor, fetched string) (merged string, appended int, err error) {
	if old == nil {
		fresh, perr := table.Parse(fetched)
		if perr == nil {
			appended = fresh.Len()
		}
		return fetched, appended, nil
	}

	fresh, err := table.Parse(fetched)
	if err != nil {
		return "", 0, err
	}
	newer, err := fresh.FilterGreater(timeColumn, cursor)
	if err != nil {
		return "", 0, err
	}
	out, err := old.Append(newer).Encode()
	if err != nil {
		return "", 0, err
	}
	return out, newer.Len(), nil
}

// Run performs one sync. Failures are logged and recorded in the report;
// the object is only overwritten when every step before the upload worked.
func (s *CSVSyncService) Run(ctx context.Context) models.SyncReport {
	report := newReport(models.PipelineCSV, s.now())

	if csvNew, ok := s.newCSV(ctx, report); ok {
		if err := s.store.Write(ctx, csvContentType, csvNew); err != nil {
			s.log.Errorw("Upload failed", "err", err)
			report.Fail("upload", err)
			report.Status = models.StatusFailed
		}
	} else {
		report.Status = models.StatusFailed
	}

	if err := s.store.MakePublic(ctx); err != nil {
		s.log.Errorw("Make public failed", "err", err)
		report.Fail("make_public", err)
		if report.Status == models.StatusOK {
			report.Status = models.StatusPartial
		}
	}
	return finish(report, s.now())
}

func (s *CSVSyncService) newCSV(ctx context.Context, report *models.SyncReport) (string, bool) {
	oldText, found, err := s.store.Read(ctx)
	if err != nil {
		s.log.Errorw("Get csv failed", "err", err)
		report.Fail("read", err)
		return "", false
	}

	var old *table.Table
	if found && oldText != "" {
		old, err = table.Parse(oldText)
		if err != nil {
			s.log.Errorw("Get latest timestamp failed", "err", err)
			report.Fail("cursor", err)
			return "", false
		}
		if old.Len() == 0 {
			old = nil
		}
	}
	cursor := Cursor(old)
	report.Cursor = cursor

	session := s.sessions()
	tags, err := session.ListTags(ctx)
	if err != nil {
		s.log.Errorw("Get tags data failed", "err", err)
		report.Fail("tags", err)
		return "", false
	}
	fetched, err := session.ExportCSV(ctx, cursor, tags...)
	if err != nil {
		s.log.Errorw("Get lsi data failed", "err", err)
		report.Fail("export", err)
		return "", false
	}

	merged, appended, err := Merge(old, cursor, fetched)
	if err != nil {
		s.log.Errorw("Get new csv failed", "err", err)
		report.Fail("merge", err)
		return "", false
	}

	report.RowsAdded = appended
	if old == nil {
		report.FullReload = true
		report.RowsTotal = appended
		s.log.Infow("Full reload", "rows", appended)
	} else {
		report.RowsBefore = old.Len()
		report.RowsTotal = old.Len() + appended
		s.log.Infof("%d rows appended to %d rows and total rows= %d", appended, old.Len(), report.RowsTotal)
	}
	return merged, true
}
