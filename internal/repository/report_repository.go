package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"CapIot.ixonsync/internal/models"
)

// ErrReportNotFound is returned when a pipeline has no stored report.
var ErrReportNotFound = errors.New("report not found")

// ReportStore keeps the last run report of each pipeline.
type ReportStore interface {
	Save(ctx context.Context, report models.SyncReport) error
	Last(ctx context.Context, pipeline string) (models.SyncReport, error)
}

// RedisReportStore stores reports as JSON values with a TTL.
type RedisReportStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReportStore(client *redis.Client, ttl time.Duration) *RedisReportStore {
	return &RedisReportStore{client: client, ttl: ttl}
}

// ConnectRedis opens a client and checks the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func reportKey(pipeline string) string {
	return fmt.Sprintf("ixonsync:report:%s", pipeline)
}

func (s *RedisReportStore) Save(ctx context.Context, report models.SyncReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, reportKey(report.Pipeline), raw, s.ttl).Err()
}

func (s *RedisReportStore) Last(ctx context.Context, pipeline string) (models.SyncReport, error) {
	raw, err := s.client.Get(ctx, reportKey(pipeline)).Bytes()
	if err == redis.Nil {
		return models.SyncReport{}, ErrReportNotFound
	}
	if err != nil {
		return models.SyncReport{}, err
	}
	var report models.SyncReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return models.SyncReport{}, fmt.Errorf("decode report for %s: %w", pipeline, err)
	}
	return report, nil
}
