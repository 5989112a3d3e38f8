package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TimeSeriesRepository is the database sink of the InfluxDB pipeline.
type TimeSeriesRepository interface {
	LatestTimestamp(ctx context.Context, field string) (time.Time, bool, error)
	EnsureDatabase(ctx context.Context) error
	WritePoints(ctx context.Context, points []*write.Point) error
}

// InfluxDBOptions names where points go.
type InfluxDBOptions struct {
	URL         string
	Token       string
	Org         string
	Database    string
	Measurement string
	BatchSize   int
}

// InfluxDBRepository reads cursors from and writes points to one measurement.
type InfluxDBRepository struct {
	client      influxdb2.Client
	v1          *resty.Client
	token       string
	org         string
	bucket      string
	measurement string
	batchSize   int
}

// NewInfluxDBRepository creates a new InfluxDBRepository.
func NewInfluxDBRepository(opts InfluxDBOptions) *InfluxDBRepository {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	return &InfluxDBRepository{
		client:      influxdb2.NewClient(opts.URL, opts.Token),
		v1:          resty.New().SetBaseURL(strings.TrimSuffix(opts.URL, "/")),
		token:       opts.Token,
		org:         opts.Org,
		bucket:      opts.Database,
		measurement: opts.Measurement,
		batchSize:   opts.BatchSize,
	}
}

// Health checks that the server answers.
func (r *InfluxDBRepository) Health(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}
	return nil
}

func (r *InfluxDBRepository) Close() {
	r.client.Close()
}

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func (r *InfluxDBRepository) lastQuery(field string) string {
	return fmt.Sprintf(`from(bucket: %s)
	|> range(start: 0)
	|> filter(fn: (r) => r._measurement == %s and r._field == %s)
	|> last()`, fluxString(r.bucket), fluxString(r.measurement), fluxString(field))
}

// LatestTimestamp returns the time of the newest stored value of field.
// found is false when the field has no data yet.
func (r *InfluxDBRepository) LatestTimestamp(ctx context.Context, field string) (time.Time, bool, error) {
	result, err := r.client.QueryAPI(r.org).Query(ctx, r.lastQuery(field))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("error querying InfluxDB: %w", err)
	}
	defer result.Close()

	var latest time.Time
	found := false
	for result.Next() {
		t := result.Record().Time()
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}
	if result.Err() != nil {
		return time.Time{}, false, fmt.Errorf("query error: %w", result.Err())
	}
	return latest, found, nil
}

// EnsureDatabase makes sure the target exists. Without an organization the
// server is treated as InfluxDB 1.x and CREATE DATABASE is issued, which is a
// no-op for an existing database. With one, the v2 bucket is looked up and
// created when missing.
func (r *InfluxDBRepository) EnsureDatabase(ctx context.Context) error {
	if r.org == "" {
		return r.createDatabase(ctx)
	}

	bucketsAPI := r.client.BucketsAPI()
	_, err := bucketsAPI.FindBucketByName(ctx, r.bucket)
	if err == nil {
		return nil
	}
	if !isBucketNotFound(err, r.bucket) {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}

	org, err := r.client.OrganizationsAPI().FindOrganizationByName(ctx, r.org)
	if err != nil {
		return fmt.Errorf("error finding organization '%s': %w", r.org, err)
	}
	if _, err := bucketsAPI.CreateBucketWithName(ctx, org, r.bucket); err != nil {
		return fmt.Errorf("error creating bucket '%s': %w", r.bucket, err)
	}
	return nil
}

// isBucketNotFound matches the error FindBucketByName returns for an empty
// result. Transport and server errors do not match.
func isBucketNotFound(err error, bucket string) bool {
	return err.Error() == fmt.Sprintf("bucket '%s' not found", bucket)
}

// v1QueryResponse is the body of an InfluxDB 1.x /query response.
type v1QueryResponse struct {
	Error   string `json:"error"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

func (r *InfluxDBRepository) createDatabase(ctx context.Context) error {
	req := r.v1.R().
		SetContext(ctx).
		SetFormData(map[string]string{"q": "CREATE DATABASE " + influxQLIdent(r.bucket)})
	if r.token != "" {
		req.SetHeader("Authorization", "Token "+r.token)
	}
	resp, err := req.Post("/query")
	if err != nil {
		return fmt.Errorf("error creating database '%s': %w", r.bucket, err)
	}

	var body v1QueryResponse
	_ = json.Unmarshal(resp.Body(), &body)
	if body.Error != "" {
		return fmt.Errorf("error creating database '%s': %s", r.bucket, body.Error)
	}
	for _, res := range body.Results {
		if res.Error != "" {
			return fmt.Errorf("error creating database '%s': %s", r.bucket, res.Error)
		}
	}
	if resp.IsError() {
		return fmt.Errorf("error creating database '%s': status %d", r.bucket, resp.StatusCode())
	}
	return nil
}

// influxQLIdent quotes s as an InfluxQL identifier. The escaping rules are
// the same as for a Flux string.
func influxQLIdent(s string) string {
	return fluxString(s)
}

// WritePoints writes in batches of the configured size. Points with the
// same series and timestamp replace each other, so the last write wins.
func (r *InfluxDBRepository) WritePoints(ctx context.Context, points []*write.Point) error {
	writeAPI := r.client.WriteAPIBlocking(r.org, r.bucket)
	for start := 0; start < len(points); start += r.batchSize {
		end := min(start+r.batchSize, len(points))
		if err := writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("error writing to InfluxDB after %d of %d points: %w", start, len(points), err)
		}
	}
	return nil
}

// Measurement is the measurement points are written to.
func (r *InfluxDBRepository) Measurement() string {
	return r.measurement
}
