// Package pgstore provides a PostgreSQL implementation of evidence.Store.
//
// Documents are stored as TEXT rather than jsonb so the exact bytes written
// by the aggregator come back unchanged.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/postgres"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ksiwatch/internal/evidence/pgstore")

//go:embed schema.sql
var schema string

// Store persists category documents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load reads a category document and its version.
func (s *Store) Load(ctx context.Context, category string) ([]byte, int64, error) {
	ctx, span := startSpan(ctx, "pgstore.Load", "SELECT", category)
	defer span.End()

	var (
		doc     string
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT document, version FROM evidence_rollups WHERE category = $1`, category,
	).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		fail(span, err)
		return nil, 0, fmt.Errorf("load %s: %w", category, err)
	}
	return []byte(doc), version, nil
}

// Save writes doc as version expectVersion+1. The UPDATE only matches the
// expected version and the INSERT only succeeds for a new category, so a
// concurrent writer makes the statement affect zero rows.
func (s *Store) Save(ctx context.Context, category string, expectVersion int64, doc []byte) error {
	op := "UPDATE"
	if expectVersion == 0 {
		op = "INSERT"
	}
	ctx, span := startSpan(ctx, "pgstore.Save", op, category)
	defer span.End()
	span.SetAttributes(attribute.Int64("ksiwatch.expect_version", expectVersion))

	var (
		query string
		args  []any
	)
	if expectVersion == 0 {
		query = `INSERT INTO evidence_rollups (category, version, document, updated_at)
			VALUES ($1, 1, $2, now())
			ON CONFLICT (category) DO NOTHING`
		args = []any{category, string(doc)}
	} else {
		query = `UPDATE evidence_rollups
			SET version = version + 1, document = $3, updated_at = now()
			WHERE category = $1 AND version = $2`
		args = []any{category, expectVersion, string(doc)}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("save %s: %w", category, err)
	}
	if tag.RowsAffected() == 0 {
		return evidence.ErrVersionConflict
	}
	return nil
}

// Categories lists stored categories in sorted order.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	ctx, span := startSpan(ctx, "pgstore.Categories", "SELECT", "")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT category FROM evidence_rollups ORDER BY category COLLATE "C"`)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return out, nil
}

func startSpan(ctx context.Context, name, op, category string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	}
	if category != "" {
		attrs = append(attrs, attribute.String("ksiwatch.category", category))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
