// Package redisstore provides a Redis implementation of evidence.Store.
//
// Each category is a hash at <prefix>:rollup:<category> with "version" and
// "document" fields. A set at <prefix>:rollups indexes category names.
// Writes run in a WATCH/MULTI transaction on the category key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ksiwatch/internal/evidence/redisstore")

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "ksiwatch"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store persists category documents in Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redisstore: address is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: rdb, prefix: opts.Prefix}, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(category string) string {
	return s.prefix + ":rollup:" + category
}

func (s *Store) indexKey() string {
	return s.prefix + ":rollups"
}

// Load reads a category document and its version.
func (s *Store) Load(ctx context.Context, category string) (_ []byte, _ int64, err error) {
	ctx, span := startSpan(ctx, "redisstore.Load", category)
	defer func() { endSpan(span, err) }()

	return readEntry(ctx, s.client, s.key(category))
}

// Save writes doc as version expectVersion+1 inside a WATCH transaction.
// A concurrent write between the read and EXEC aborts the transaction and
// is reported as evidence.ErrVersionConflict.
func (s *Store) Save(ctx context.Context, category string, expectVersion int64, doc []byte) (err error) {
	ctx, span := startSpan(ctx, "redisstore.Save", category)
	span.SetAttributes(attribute.Int64("ksiwatch.expect_version", expectVersion))
	defer func() { endSpan(span, err) }()

	key := s.key(category)
	txf := func(tx *redis.Tx) error {
		_, current, err := readEntry(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expectVersion {
			return evidence.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "version", expectVersion+1, "document", doc)
			pipe.SAdd(ctx, s.indexKey(), category)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, evidence.ErrVersionConflict):
		return evidence.ErrVersionConflict
	default:
		return fmt.Errorf("save %s: %w", category, err)
	}
}

// Categories lists indexed categories in sorted order.
func (s *Store) Categories(ctx context.Context) (_ []string, err error) {
	ctx, span := startSpan(ctx, "redisstore.Categories", "")
	defer func() { endSpan(span, err) }()

	out, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func readEntry(ctx context.Context, c hashReader, key string) ([]byte, int64, error) {
	vals, err := c.HMGet(ctx, key, "version", "document").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, 0, nil
	}
	vs, _ := vals[0].(string)
	version, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse version of %s: %w", key, err)
	}
	doc, _ := vals[1].(string)
	return []byte(doc), version, nil
}

func startSpan(ctx context.Context, name, category string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.system", "redis")}
	if category != "" {
		attrs = append(attrs, attribute.String("ksiwatch.category", category))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, evidence.ErrVersionConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
