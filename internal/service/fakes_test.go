package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"CapIot.ixonsync/internal/models"
)

type exportCall struct {
	since string
	tags  []models.Tag
}

type fakeExporter struct {
	tags    []models.Tag
	tagsErr error
	// csv by tag name; "*" answers multi-tag exports.
	csv   map[string]string
	errs  map[string]error
	calls []exportCall
}

func (f *fakeExporter) ListTags(ctx context.Context) ([]models.Tag, error) {
	return f.tags, f.tagsErr
}

func (f *fakeExporter) ExportCSV(ctx context.Context, since string, tags ...models.Tag) (string, error) {
	f.calls = append(f.calls, exportCall{since: since, tags: tags})
	key := "*"
	if len(tags) == 1 {
		key = tags[0].Name
	}
	if err := f.errs[key]; err != nil {
		return "", err
	}
	return f.csv[key], nil
}

func (f *fakeExporter) factory() SessionFactory {
	return func() Exporter { return f }
}

type fakeStore struct {
	data       string
	found      bool
	readErr    error
	writeErr   error
	publicErr  error
	writes     []string
	publicized int
}

func (s *fakeStore) Read(ctx context.Context) (string, bool, error) {
	return s.data, s.found, s.readErr
}

func (s *fakeStore) Write(ctx context.Context, contentType, data string) error {
	if contentType != "text/csv" {
		return errors.New("unexpected content type " + contentType)
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, data)
	return nil
}

func (s *fakeStore) MakePublic(ctx context.Context) error {
	s.publicized++
	return s.publicErr
}

type fakeTSRepo struct {
	latest    map[string]time.Time
	latestErr map[string]error
	ensureErr error
	ensured   int
	// writeErr fails every write; writeErrAt fails the n-th write only.
	writeErr   error
	writeErrAt map[int]error
	writeCalls int
	written    [][]*write.Point
}

func (r *fakeTSRepo) LatestTimestamp(ctx context.Context, field string) (time.Time, bool, error) {
	if err := r.latestErr[field]; err != nil {
		return time.Time{}, false, err
	}
	ts, ok := r.latest[field]
	return ts, ok, nil
}

func (r *fakeTSRepo) EnsureDatabase(ctx context.Context) error {
	r.ensured++
	return r.ensureErr
}

func (r *fakeTSRepo) WritePoints(ctx context.Context, points []*write.Point) error {
	r.writeCalls++
	if r.writeErr != nil {
		return r.writeErr
	}
	if err := r.writeErrAt[r.writeCalls]; err != nil {
		return err
	}
	r.written = append(r.written, points)
	return nil
}

type fakeReports struct {
	mu      sync.Mutex
	saved   map[string]models.SyncReport
	saveErr error
}

func (f *fakeReports) Save(ctx context.Context, report models.SyncReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = map[string]models.SyncReport{}
	}
	f.saved[report.Pipeline] = report
	return nil
}

func (f *fakeReports) Last(ctx context.Context, pipeline string) (models.SyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.saved[pipeline]
	if !ok {
		return models.SyncReport{}, errors.New("report not found")
	}
	return r, nil
}
