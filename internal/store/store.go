// Package store keeps a log of refresh runs in SQLite. Fetched texts are
// never written; only what happened and when.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	runsTable = "refresh_runs"
	// busyTimeout bounds how long a write waits on a locked database.
	busyTimeout = time.Second
)

// Run outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

var runColumns = []string{
	"id", "callback", "source", "started_at", "finished_at", "outcome",
	"error_kind", "error_message", "policy", "next_refresh_at", "text_count",
}

type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Run is one recorded host callback.
type Run struct {
	ID            string
	Callback      string
	Source        string
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcome       string
	ErrorKind     string
	ErrorMessage  string
	Policy        string
	NextRefreshAt time.Time
	TextCount     int
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type RunInput struct {
	Callback      string
	Source        string
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcome       string
	ErrorKind     string
	ErrorMessage  string
	Policy        string
	NextRefreshAt time.Time
	TextCount     int
}

// Summary aggregates runs over a window.
type Summary struct {
	Total       int
	ByOutcome   map[string]int
	ByErrorKind map[string]int
	LastSuccess time.Time
	LastRun     time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Observers record from several goroutines; a single connection keeps
	// SQLite writes serialized.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record writes one run and returns it with its generated ID.
func (s *Store) Record(ctx context.Context, in RunInput) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(in.Callback) == "" {
		return Run{}, errors.New("callback is required")
	}
	if strings.TrimSpace(in.Source) == "" {
		return Run{}, errors.New("source is required")
	}
	if in.StartedAt.IsZero() {
		return Run{}, errors.New("started_at is required")
	}
	switch in.Outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeCancelled:
	default:
		return Run{}, fmt.Errorf("unknown outcome %q", in.Outcome)
	}
	if in.FinishedAt.IsZero() {
		in.FinishedAt = in.StartedAt
	}

	var nextVal sql.NullString
	if !in.NextRefreshAt.IsZero() {
		nextVal = sql.NullString{String: formatTime(in.NextRefreshAt), Valid: true}
	}

	run := Run{
		ID:            uuid.NewString(),
		Callback:      in.Callback,
		Source:        in.Source,
		StartedAt:     in.StartedAt.UTC(),
		FinishedAt:    in.FinishedAt.UTC(),
		Outcome:       in.Outcome,
		ErrorKind:     in.ErrorKind,
		ErrorMessage:  in.ErrorMessage,
		Policy:        in.Policy,
		NextRefreshAt: in.NextRefreshAt,
		TextCount:     in.TextCount,
	}
	if !run.NextRefreshAt.IsZero() {
		run.NextRefreshAt = run.NextRefreshAt.UTC()
	}

	query, args, err := s.sb.Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.ID, run.Callback, run.Source,
			formatTime(run.StartedAt), formatTime(run.FinishedAt),
			run.Outcome, run.ErrorKind, run.ErrorMessage, run.Policy,
			nextVal, run.TextCount,
		).
		ToSql()
	if err != nil {
		return Run{}, fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first. Non-empty callback filters
// by callback name.
func (s *Store) Recent(ctx context.Context, limit int, callback string) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}

	q := s.sb.Select(runColumns...).
		From(runsTable).
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit))
	if callback != "" {
		q = q.Where(sq.Eq{"callback": callback})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Summary aggregates runs started at or after since.
func (s *Store) Summary(ctx context.Context, since time.Time) (Summary, error) {
	sum := Summary{
		ByOutcome:   make(map[string]int),
		ByErrorKind: make(map[string]int),
	}
	if s == nil || s.db == nil {
		return sum, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query, args, err := s.sb.Select("outcome", "error_kind", "COUNT(*)", "MAX(started_at)").
		From(runsTable).
		Where(sq.GtOrEq{"started_at": formatTime(since)}).
		GroupBy("outcome", "error_kind").
		ToSql()
	if err != nil {
		return sum, fmt.Errorf("build summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return sum, fmt.Errorf("query summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			outcome, kind, last string
			count               int
		)
		if err := rows.Scan(&outcome, &kind, &count, &last); err != nil {
			return sum, fmt.Errorf("scan summary: %w", err)
		}
		lastAt, err := parseTime(last)
		if err != nil {
			return sum, fmt.Errorf("parse started_at: %w", err)
		}

		sum.Total += count
		sum.ByOutcome[outcome] += count
		if kind != "" {
			sum.ByErrorKind[kind] += count
		}
		if lastAt.After(sum.LastRun) {
			sum.LastRun = lastAt
		}
		if outcome == OutcomeSuccess && lastAt.After(sum.LastSuccess) {
			sum.LastSuccess = lastAt
		}
	}
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("iterate summary: %w", err)
	}
	return sum, nil
}

// Prune deletes runs older than retainDays. Returns the number removed.
func (s *Store) Prune(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))
	query, args, err := s.sb.Delete(runsTable).
		Where(sq.Lt{"started_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (Run, error) {
	var (
		run                 Run
		startedAt, finished string
		nextVal             sql.NullString
	)

	if err := scanner.Scan(
		&run.ID,
		&run.Callback,
		&run.Source,
		&startedAt,
		&finished,
		&run.Outcome,
		&run.ErrorKind,
		&run.ErrorMessage,
		&run.Policy,
		&nextVal,
		&run.TextCount,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	if nextVal.Valid {
		if run.NextRefreshAt, err = parseTime(nextVal.String); err != nil {
			return Run{}, fmt.Errorf("parse next_refresh_at: %w", err)
		}
	}
	return run, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(timeLayout, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
