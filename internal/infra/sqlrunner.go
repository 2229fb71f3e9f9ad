package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is what repositories need to run marker-tagged statements.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrSQLMarker rejects a statement whose first line is not "--sql <uuid>".
var ErrSQLMarker = errors.New("sql marker missing or invalid")

// DefaultSlowQuery is the duration after which a statement logs a warning.
const DefaultSlowQuery = 500 * time.Millisecond

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner strips the audit marker off each statement before it reaches
// Postgres and logs the statement by marker. Poll loops run statements every
// few seconds, so successful statements log at debug level; failures and slow
// statements stand out above it. Job and request ids carried by the context
// are attached to every line.
type SQLRunner struct {
	db        SQLExecutor
	logger    zerolog.Logger
	slowAfter time.Duration
}

// NewSQLRunner wraps pool.
func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return newSQLRunner(pool, logger)
}

func newSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger, slowAfter: DefaultSlowQuery}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		r.rejected(ctx, err)
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, stmt, args...)
	r.event(ctx, marker, "exec", time.Since(start), err).
		Int64("rows", tag.RowsAffected()).
		Msg("sql")
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		r.rejected(ctx, err)
		return errorRow{err: err}
	}
	return loggingRow{
		row:    r.db.QueryRow(ctx, stmt, args...),
		runner: r,
		ctx:    ctx,
		marker: marker,
		start:  time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		r.rejected(ctx, err)
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		r.event(ctx, marker, "query", time.Since(start), err).Msg("sql")
		return nil, err
	}
	return &loggingRows{Rows: rows, runner: r, ctx: ctx, marker: marker, start: start}, nil
}

// event picks the level of a finished statement. A missing row is an answer,
// not a failure.
func (r *SQLRunner) event(ctx context.Context, marker, op string, elapsed time.Duration, err error) *zerolog.Event {
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		ev = r.logger.Error().Err(err)
	case elapsed >= r.slowAfter:
		ev = r.logger.Warn().Bool("slow", true)
	default:
		ev = r.logger.Debug()
	}
	return withTags(ctx, ev).
		Str("sql", marker).
		Str("op", op).
		Dur("elapsed", elapsed)
}

func (r *SQLRunner) rejected(ctx context.Context, err error) {
	withTags(ctx, r.logger.Error().Err(err)).Msg("sql statement rejected")
}

type loggingRow struct {
	row    pgx.Row
	runner *SQLRunner
	ctx    context.Context
	marker string
	start  time.Time
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.event(l.ctx, l.marker, "query_row", time.Since(l.start), err).
		Bool("found", err == nil).
		Msg("sql")
	return err
}

type loggingRows struct {
	pgx.Rows
	runner *SQLRunner
	ctx    context.Context
	marker string
	start  time.Time
	count  int
	closed bool
}

func (l *loggingRows) Next() bool {
	if l.Rows.Next() {
		l.count++
		return true
	}
	return false
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	if l.closed {
		return
	}
	l.closed = true
	l.runner.event(l.ctx, l.marker, "query", time.Since(l.start), l.Rows.Err()).
		Int("rows", l.count).
		Msg("sql")
}

// errorRow defers a rejected statement's error to Scan, the way pgx reports
// QueryRow failures.
type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// extractMarker splits "--sql <uuid>" off the first line of query and returns
// the marker id and the remaining statement.
func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", ErrSQLMarker
	}
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrSQLMarker
	}
	stmt := strings.TrimSpace(rest)
	if stmt == "" {
		return "", "", ErrSQLMarker
	}
	return strings.TrimPrefix(first, "--sql "), stmt, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
