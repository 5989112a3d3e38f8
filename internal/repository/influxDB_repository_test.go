package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lastValueCSV = `#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,double,string,string
#group,false,false,true,true,false,false,true,true
#default,_result,,,,,,,
,result,table,_start,_stop,_time,_value,_field,_measurement
,,0,1970-01-01T00:00:00Z,2024-02-01T00:00:00Z,2024-01-01T10:00:00.123456Z,21.5,Temperature,plant

`

// fakeInflux answers the query, write, bucket and organization endpoints of
// the v2 API and the 1.x /query endpoint.
type fakeInflux struct {
	mu             sync.Mutex
	queries        []string
	queryCSV       string
	writes         []string
	bucketNames    []string
	bucketsStatus  int
	orgNames       []string
	createdBuckets []string
	v1Queries      []string
	v1Auth         string
	v1Response     string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/query", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.queries = append(f.queries, body.Query)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = io.WriteString(w, f.queryCSV)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(raw))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/buckets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if f.bucketsStatus != 0 {
			w.WriteHeader(f.bucketsStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": "unauthorized access"})
			return
		}
		if r.Method == http.MethodPost {
			var body struct {
				Name  string `json:"name"`
				OrgID string `json:"orgID"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.createdBuckets = append(f.createdBuckets, body.Name+"@"+body.OrgID)
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":             "0000000000000003",
				"name":           body.Name,
				"orgID":          body.OrgID,
				"retentionRules": []any{},
			})
			return
		}
		buckets := []map[string]any{}
		for _, name := range f.bucketNames {
			if name == r.URL.Query().Get("name") {
				buckets = append(buckets, map[string]any{
					"id":             "0000000000000001",
					"name":           name,
					"orgID":          "0000000000000002",
					"retentionRules": []any{},
				})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"buckets": buckets})
	})
	mux.HandleFunc("/api/v2/orgs", func(w http.ResponseWriter, r *http.Request) {
		orgs := []map[string]any{}
		for _, name := range f.orgNames {
			if name == r.URL.Query().Get("org") {
				orgs = append(orgs, map[string]any{"id": "0000000000000002", "name": name})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"orgs": orgs})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.v1Queries = append(f.v1Queries, r.PostForm.Get("q"))
		f.v1Auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		resp := f.v1Response
		if resp == "" {
			resp = `{"results":[{"statement_id":0}]}`
		}
		_, _ = io.WriteString(w, resp)
	})
	return mux
}

func newTestRepo(t *testing.T, f *fakeInflux, batchSize int) *InfluxDBRepository {
	return newTestRepoWithOrg(t, f, batchSize, "")
}

func newTestRepoWithOrg(t *testing.T, f *fakeInflux, batchSize int, org string) *InfluxDBRepository {
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	repo := NewInfluxDBRepository(InfluxDBOptions{
		URL:         srv.URL,
		Token:       "user:pass",
		Org:         org,
		Database:    "test_total_4",
		Measurement: "plant",
		BatchSize:   batchSize,
	})
	t.Cleanup(repo.Close)
	return repo
}

func TestLatestTimestamp(t *testing.T) {
	f := &fakeInflux{queryCSV: lastValueCSV}
	repo := newTestRepo(t, f, 0)

	ts, found, err := repo.LatestTimestamp(context.Background(), "Temperature")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.UTC), ts.UTC())

	require.Len(t, f.queries, 1)
	assert.Contains(t, f.queries[0], `from(bucket: "test_total_4")`)
	assert.Contains(t, f.queries[0], `r._measurement == "plant" and r._field == "Temperature"`)
	assert.Contains(t, f.queries[0], "last()")
}

func TestLatestTimestampNoData(t *testing.T) {
	f := &fakeInflux{}
	repo := newTestRepo(t, f, 0)

	_, found, err := repo.LatestTimestamp(context.Background(), "Pressure")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFluxStringEscapes(t *testing.T) {
	assert.Equal(t, `"a\"b\\c"`, fluxString(`a"b\c`))
}

func TestWritePointsBatches(t *testing.T) {
	f := &fakeInflux{}
	repo := newTestRepo(t, f, 2)

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var points []*write.Point
	for i := 0; i < 5; i++ {
		points = append(points, influxdb2.NewPoint("plant", nil,
			map[string]interface{}{"Temperature": 20.0 + float64(i)}, base.Add(time.Duration(i)*time.Second)))
	}

	require.NoError(t, repo.WritePoints(context.Background(), points))
	require.Len(t, f.writes, 3)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(f.writes[0]), "\n")+1)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(f.writes[2]), "\n")+1)
	assert.True(t, strings.HasPrefix(f.writes[0], "plant Temperature=20"))
}

func TestWritePointsEmpty(t *testing.T) {
	f := &fakeInflux{}
	repo := newTestRepo(t, f, 2)

	require.NoError(t, repo.WritePoints(context.Background(), nil))
	assert.Empty(t, f.writes)
}

func TestEnsureDatabaseWithoutOrgCreatesV1Database(t *testing.T) {
	f := &fakeInflux{}
	repo := newTestRepo(t, f, 0)

	require.NoError(t, repo.EnsureDatabase(context.Background()))
	require.NoError(t, repo.EnsureDatabase(context.Background()))
	assert.Equal(t, []string{`CREATE DATABASE "test_total_4"`, `CREATE DATABASE "test_total_4"`}, f.v1Queries)
	assert.Equal(t, "Token user:pass", f.v1Auth)
	assert.Empty(t, f.createdBuckets)
}

func TestEnsureDatabaseV1Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "top level error", response: `{"error":"authorization failed"}`},
		{name: "statement error", response: `{"results":[{"statement_id":0,"error":"not authorized to execute statement"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t, &fakeInflux{v1Response: tt.response}, 0)
			err := repo.EnsureDatabase(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "error creating database 'test_total_4'")
		})
	}
}

func TestEnsureDatabaseBucketExists(t *testing.T) {
	f := &fakeInflux{bucketNames: []string{"test_total_4"}, orgNames: []string{"capiot"}}
	repo := newTestRepoWithOrg(t, f, 0, "capiot")

	require.NoError(t, repo.EnsureDatabase(context.Background()))
	assert.Empty(t, f.createdBuckets)
	assert.Empty(t, f.v1Queries)
}

func TestEnsureDatabaseCreatesBucketInOrg(t *testing.T) {
	f := &fakeInflux{orgNames: []string{"capiot"}}
	repo := newTestRepoWithOrg(t, f, 0, "capiot")

	require.NoError(t, repo.EnsureDatabase(context.Background()))
	assert.Equal(t, []string{"test_total_4@0000000000000002"}, f.createdBuckets)
}

func TestEnsureDatabaseUnknownOrg(t *testing.T) {
	f := &fakeInflux{}
	repo := newTestRepoWithOrg(t, f, 0, "capiot")

	err := repo.EnsureDatabase(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error finding organization 'capiot'")
	assert.Empty(t, f.createdBuckets)
}

func TestEnsureDatabaseLookupFailureIsNotMissing(t *testing.T) {
	f := &fakeInflux{bucketsStatus: http.StatusUnauthorized, orgNames: []string{"capiot"}}
	repo := newTestRepoWithOrg(t, f, 0, "capiot")

	err := repo.EnsureDatabase(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error checking bucket existence")
	assert.Empty(t, f.createdBuckets)
}
