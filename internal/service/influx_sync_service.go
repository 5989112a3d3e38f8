package service

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"CapIot.ixonsync/internal/logger"
	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/repository"
)

// DefaultInfluxCursor is used for a tag whose latest timestamp cannot be read.
const DefaultInfluxCursor = "2015-01-01 00:00:00"

// cursorLayout formats stored timestamps as export "from" values.
const cursorLayout = "2006-01-02 15:04:05.000000"

// InfluxSyncService pushes each tag's new values into InfluxDB.
type InfluxSyncService struct {
	sessions       SessionFactory
	repo           repository.TimeSeriesRepository
	measurement    string
	ensureDatabase bool
	log            *logger.Logger
	now            func() time.Time
}

func NewInfluxSyncService(sessions SessionFactory, repo repository.TimeSeriesRepository, measurement string, ensureDatabase bool, log *logger.Logger) *InfluxSyncService {
	return &InfluxSyncService{
		sessions:       sessions,
		repo:           repo,
		measurement:    measurement,
		ensureDatabase: ensureDatabase,
		log:            log,
		now:            time.Now,
	}
}

type tagBatch struct {
	tag    int
	points []*write.Point
}

// Run syncs every tag independently. A tag that fails is logged and skipped.
func (s *InfluxSyncService) Run(ctx context.Context) models.SyncReport {
	report := newReport(models.PipelineInflux, s.now())

	session := s.sessions()
	tags, err := session.ListTags(ctx)
	if err != nil {
		s.log.Errorw("Get tags data failed", "err", err)
		s.log.Errorw("Pipeline failed", "err", err)
		report.Fail("tags", err)
		report.Status = models.StatusFailed
		return finish(report, s.now())
	}

	report.Tags = make([]models.TagReport, len(tags))
	for i, tag := range tags {
		report.Tags[i] = models.TagReport{Tag: tag.Name, Cursor: s.latestTimestamp(ctx, tag.Name)}
	}

	var batches []tagBatch
	for i, tag := range tags {
		tr := &report.Tags[i]
		text, err := session.ExportCSV(ctx, tr.Cursor, tag)
		if err != nil {
			s.log.Errorw("Get lsi data failed for tag "+tag.Name, "err", err)
			tr.Error = err.Error()
			continue
		}
		points, rows, err := ParseExport(s.measurement, text)
		if err != nil {
			s.log.Errorw("Get df to append failed for tag "+tag.Name, "err", err)
			tr.Error = err.Error()
			continue
		}
		s.log.Infof("%d rows to be pushed for tag %s", rows, tag.Name)
		batches = append(batches, tagBatch{tag: i, points: points})
	}

	for _, b := range batches {
		tr := &report.Tags[b.tag]
		if err := s.upload(ctx, tr.Tag, b.points); err != nil {
			s.log.Errorw("Write to influxdb failed", "tag", tr.Tag, "err", err)
			tr.Error = err.Error()
			continue
		}
		tr.Rows = len(b.points)
		report.RowsAdded += tr.Rows
	}

	report.Status = tagStatus(report.Tags)
	return finish(report, s.now())
}

// latestTimestamp never fails: a tag without readable history starts from
// DefaultInfluxCursor.
func (s *InfluxSyncService) latestTimestamp(ctx context.Context, field string) string {
	ts, found, err := s.repo.LatestTimestamp(ctx, field)
	if err != nil || !found {
		s.log.Warnw("Could not fetch latest timestamp for tag "+field+". Using default.", "err", err)
		return DefaultInfluxCursor
	}
	return ts.UTC().Format(cursorLayout)
}

// upload writes one tag's points. A failed database check does not stop the
// write; a missing database then surfaces as the write error.
func (s *InfluxSyncService) upload(ctx context.Context, tag string, points []*write.Point) error {
	if s.ensureDatabase {
		if err := s.repo.EnsureDatabase(ctx); err != nil {
			s.log.Warnw("Create database failed", "tag", tag, "err", err)
		}
	}
	return s.repo.WritePoints(ctx, points)
}

func tagStatus(tags []models.TagReport) string {
	failed := 0
	for _, t := range tags {
		if t.Error != "" {
			failed++
		}
	}
	switch {
	case failed == 0:
		return models.StatusOK
	case failed == len(tags):
		return models.StatusFailed
	default:
		return models.StatusPartial
	}
}
