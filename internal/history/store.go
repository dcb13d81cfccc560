// Package history keeps a Redis-backed record of past evaluation runs.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/senseval/internal/evaluation"
	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// KeyPrefix prefixes the per-metric sorted sets.
const KeyPrefix = "senseval:history:"

// Record describes one completed evaluation run.
type Record struct {
	ID              string                 `json:"id"`
	Metric          string                 `json:"metric"`
	Folds           int                    `json:"folds"`
	Seed            uint64                 `json:"seed"`
	Remapped        bool                   `json:"remapped"`
	GoldPath        string                 `json:"gold_path"`
	TestPath        string                 `json:"test_path"`
	GoldFingerprint string                 `json:"gold_fingerprint"`
	TestFingerprint string                 `json:"test_fingerprint"`
	StartedAt       time.Time              `json:"started_at"`
	DurationMs      int64                  `json:"duration_ms"`
	Terms           []evaluation.TermScore `json:"terms"`
	All             evaluation.TermScore   `json:"all"`
}

// Store persists run records in one sorted set per metric, scored by
// start time.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // records older than this are trimmed on save
}

// NewStore connects to Redis at url. Returns error if connection fails.
func NewStore(url string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "connecting to redis", err)
	}

	return &Store{
		client: client,
		prefix: KeyPrefix,
		ttl:    ttl,
	}, nil
}

// Save adds a record and trims entries older than the TTL.
func (s *Store) Save(ctx context.Context, r Record) error {
	member, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "encoding run record", err)
	}
	key := s.prefix + r.Metric

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(r.StartedAt.Unix()),
		Member: string(member),
	})
	if s.ttl > 0 {
		minScore := time.Now().Add(-s.ttl).Unix()
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(minScore, 10))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "saving run record", err)
	}
	return nil
}

// Load returns the records of metric started at or after since, oldest
// first.
func (s *Store) Load(ctx context.Context, metric string, since time.Time) ([]Record, error) {
	results, err := s.client.ZRangeByScoreWithScores(ctx, s.prefix+metric, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "loading run history", err)
	}

	return decodeRecords(results), nil
}

// decodeRecords converts sorted set members to records, skipping entries
// that do not decode.
func decodeRecords(results []redis.Z) []Record {
	records := make([]Record, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records
}

// Metrics returns the names of metrics with stored history, sorted.
func (s *Store) Metrics(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "listing history keys", err)
	}

	sort.Strings(names)
	return names, nil
}

// Delete removes all history of metric.
func (s *Store) Delete(ctx context.Context, metric string) error {
	if err := s.client.Del(ctx, s.prefix+metric).Err(); err != nil {
		return errors.Wrap(errors.CodeUnavailable, fmt.Sprintf("deleting history of %s", metric), err)
	}
	return nil
}

// SetTTL sets the retention window applied on save. Zero keeps everything.
func (s *Store) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
