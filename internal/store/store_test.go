package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/factpane/internal/source"
	"github.com/ppiankov/factpane/internal/timeline"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "factpane.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st, path
}

func TestOpenAndMigrate(t *testing.T) {
	st, path := openTestStore(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("unexpected schema version: %s", version)
	}
}

func TestOpen_Reopen(t *testing.T) {
	st, path := openTestStore(t)
	if _, err := st.Record(context.Background(), RunInput{
		Callback: "timeline", Source: "json", StartedAt: time.Now(), Outcome: OutcomeSuccess,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = st.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()

	runs, err := again.Recent(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run after reopen, got %d", len(runs))
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordAndRecent(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	next := base.Add(3 * time.Minute)

	first, err := st.Record(ctx, RunInput{
		Callback:      "timeline",
		Source:        "json",
		StartedAt:     base,
		FinishedAt:    base.Add(250 * time.Millisecond),
		Outcome:       OutcomeSuccess,
		Policy:        "after",
		NextRefreshAt: next,
		TextCount:     1,
	})
	if err != nil {
		t.Fatalf("record success: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}

	if _, err := st.Record(ctx, RunInput{
		Callback:     "timeline",
		Source:       "json",
		StartedAt:    base.Add(time.Minute),
		Outcome:      OutcomeFailure,
		ErrorKind:    "transport",
		ErrorMessage: "connection refused",
		Policy:       "never",
	}); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	if _, err := st.Record(ctx, RunInput{
		Callback:  "snapshot",
		Source:    "json",
		StartedAt: base.Add(2 * time.Minute),
		Outcome:   OutcomeSuccess,
		TextCount: 1,
	}); err != nil {
		t.Fatalf("record snapshot: %v", err)
	}

	runs, err := st.Recent(ctx, 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].Callback != "snapshot" || runs[2].ID != first.ID {
		t.Fatalf("runs not ordered newest first: %+v", runs)
	}

	oldest := runs[2]
	if !oldest.NextRefreshAt.Equal(next) {
		t.Errorf("next_refresh_at = %v, want %v", oldest.NextRefreshAt, next)
	}
	if oldest.Duration() != 250*time.Millisecond {
		t.Errorf("duration = %v, want 250ms", oldest.Duration())
	}
	if !runs[1].NextRefreshAt.IsZero() {
		t.Errorf("failure run should have no next refresh, got %v", runs[1].NextRefreshAt)
	}
	if runs[1].ErrorKind != "transport" || runs[1].Policy != "never" {
		t.Errorf("failure run = %+v", runs[1])
	}
	if !runs[0].FinishedAt.Equal(runs[0].StartedAt) {
		t.Errorf("finished_at should default to started_at")
	}

	timelines, err := st.Recent(ctx, 10, "timeline")
	if err != nil {
		t.Fatalf("recent timeline: %v", err)
	}
	if len(timelines) != 2 {
		t.Fatalf("expected 2 timeline runs, got %d", len(timelines))
	}

	limited, err := st.Recent(ctx, 1, "")
	if err != nil {
		t.Fatalf("recent limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}
}

func TestRecord_Validation(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		in   RunInput
	}{
		{"missing callback", RunInput{Source: "json", StartedAt: now, Outcome: OutcomeSuccess}},
		{"missing source", RunInput{Callback: "timeline", StartedAt: now, Outcome: OutcomeSuccess}},
		{"missing started_at", RunInput{Callback: "timeline", Source: "json", Outcome: OutcomeSuccess}},
		{"bad outcome", RunInput{Callback: "timeline", Source: "json", StartedAt: now, Outcome: "meh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := st.Record(ctx, tt.in); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSummary(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC()

	inputs := []RunInput{
		{Callback: "timeline", Source: "json", StartedAt: base, Outcome: OutcomeSuccess},
		{Callback: "timeline", Source: "json", StartedAt: base.Add(time.Minute), Outcome: OutcomeSuccess},
		{Callback: "timeline", Source: "json", StartedAt: base.Add(2 * time.Minute), Outcome: OutcomeFailure, ErrorKind: "decode"},
		{Callback: "timeline", Source: "json", StartedAt: base.Add(3 * time.Minute), Outcome: OutcomeFailure, ErrorKind: "transport"},
		{Callback: "timeline", Source: "json", StartedAt: base.Add(4 * time.Minute), Outcome: OutcomeCancelled},
		{Callback: "timeline", Source: "json", StartedAt: base.Add(-48 * time.Hour), Outcome: OutcomeFailure, ErrorKind: "decode"},
	}
	for _, in := range inputs {
		if _, err := st.Record(ctx, in); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	sum, err := st.Summary(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Total != 5 {
		t.Errorf("total = %d, want 5", sum.Total)
	}
	if sum.ByOutcome[OutcomeSuccess] != 2 || sum.ByOutcome[OutcomeFailure] != 2 || sum.ByOutcome[OutcomeCancelled] != 1 {
		t.Errorf("by outcome = %v", sum.ByOutcome)
	}
	if sum.ByErrorKind["decode"] != 1 || sum.ByErrorKind["transport"] != 1 {
		t.Errorf("by error kind = %v", sum.ByErrorKind)
	}
	if !sum.LastSuccess.Equal(base.Add(time.Minute)) {
		t.Errorf("last success = %v, want %v", sum.LastSuccess, base.Add(time.Minute))
	}
	if !sum.LastRun.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("last run = %v, want %v", sum.LastRun, base.Add(4*time.Minute))
	}
}

func TestPrune(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, started := range []time.Time{now.AddDate(0, 0, -30), now.AddDate(0, 0, -20), now.Add(-time.Hour)} {
		if _, err := st.Record(ctx, RunInput{Callback: "timeline", Source: "json", StartedAt: started, Outcome: OutcomeSuccess}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := st.Prune(ctx, 14)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}

	if n, err := st.Prune(ctx, 0); err != nil || n != 0 {
		t.Fatalf("prune(0) = %d, %v; want 0, nil", n, err)
	}

	runs, err := st.Recent(ctx, 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 remaining run, got %d", len(runs))
	}
}

func TestNilStore(t *testing.T) {
	var st *Store
	if err := st.Close(); err != nil {
		t.Errorf("close nil store: %v", err)
	}
	if _, err := st.Record(context.Background(), RunInput{}); err == nil {
		t.Error("expected error recording into nil store")
	}
	if _, err := st.Recent(context.Background(), 1, ""); err == nil {
		t.Error("expected error reading nil store")
	}
}

func TestRunInputFromFetch(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	after := timeline.After(start.Add(3 * time.Minute))
	never := timeline.Never()

	ok := RunInputFromFetch(timeline.FetchRecord{
		Callback: timeline.CallbackTimeline, Source: "json", StartedAt: start, FinishedAt: start, Texts: 1, Policy: &after,
	})
	if ok.Outcome != OutcomeSuccess || ok.Policy != "after" || !ok.NextRefreshAt.Equal(after.Date) || ok.TextCount != 1 {
		t.Errorf("success input = %+v", ok)
	}

	failed := RunInputFromFetch(timeline.FetchRecord{
		Callback: timeline.CallbackTimeline, Source: "json", StartedAt: start, Policy: &never,
		Err: &source.FetchError{Kind: source.KindDecode, Source: "json", Err: errors.New("bad body")},
	})
	if failed.Outcome != OutcomeFailure || failed.ErrorKind != "decode" || failed.Policy != "never" || !failed.NextRefreshAt.IsZero() {
		t.Errorf("failure input = %+v", failed)
	}

	cancelled := RunInputFromFetch(timeline.FetchRecord{
		Callback: timeline.CallbackSnapshot, Source: "json", StartedAt: start, Cancelled: true, Err: context.Canceled,
	})
	if cancelled.Outcome != OutcomeCancelled || cancelled.Policy != "" {
		t.Errorf("cancelled input = %+v", cancelled)
	}
}

func TestRecorder_ObserveFetch(t *testing.T) {
	st, _ := openTestStore(t)
	after := timeline.After(time.Now().Add(3 * time.Minute))

	NewRecorder(st, nil).ObserveFetch(timeline.FetchRecord{
		Callback: timeline.CallbackTimeline, Source: "json", StartedAt: time.Now(), FinishedAt: time.Now(), Texts: 2, Policy: &after,
	})
	// Invalid records are dropped without panicking.
	NewRecorder(st, nil).ObserveFetch(timeline.FetchRecord{})

	runs, err := st.Recent(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 || runs[0].TextCount != 2 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	st, path := openTestStore(t)
	if _, err := st.db.Exec("UPDATE metadata SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatalf("stamp newer version: %v", err)
	}
	_ = st.Close()

	again, err := Open(path)
	if err == nil {
		_ = again.Close()
		t.Fatal("expected error opening a newer schema")
	}
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("err = %v, want ErrSchemaTooNew", err)
	}
}

func TestOpen_KeepsCurrentSchemaVersion(t *testing.T) {
	st, path := openTestStore(t)
	_ = st.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()

	var count int
	if err := again.db.QueryRow("SELECT COUNT(*) FROM metadata WHERE key = 'schema_version'").Scan(&count); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 1 {
		t.Fatalf("schema_version rows = %d, want 1", count)
	}
}

func TestRecorder_DecodeFailureKeepsBodyOut(t *testing.T) {
	const fact = "the cat fact text"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data":[%q,42]}`, fact)
	}))
	defer srv.Close()

	st, _ := openTestStore(t)
	provider := timeline.NewProvider(source.NewJSON(srv.URL, 0, 5*time.Second),
		timeline.WithObserver(NewRecorder(st, nil)))

	tl, err := provider.Timeline(context.Background(), timeline.Context{}, time.Now())
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(tl.Entries) != 0 || tl.Policy.Kind != timeline.PolicyNever {
		t.Fatalf("timeline = %+v, want empty with never", tl)
	}

	runs, err := st.Recent(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Outcome != OutcomeFailure || run.ErrorKind != "decode" {
		t.Fatalf("run = %+v", run)
	}
	if strings.Contains(run.ErrorMessage, fact) || strings.Contains(run.ErrorMessage, "42") {
		t.Errorf("error message leaks body: %q", run.ErrorMessage)
	}
	if run.ErrorMessage != source.KindDecode.Summary() {
		t.Errorf("error message = %q, want %q", run.ErrorMessage, source.KindDecode.Summary())
	}
}

func TestRunInputFromFetch_CommandStderrNotKept(t *testing.T) {
	in := RunInputFromFetch(timeline.FetchRecord{
		Callback: timeline.CallbackSnapshot, Source: "command", StartedAt: time.Now(),
		Err: &source.FetchError{Kind: source.KindTransport, Source: "command",
			Err: errors.New("run command: exit status 1 (stderr: secret fact on stderr)")},
	})
	if strings.Contains(in.ErrorMessage, "secret fact") {
		t.Errorf("error message leaks stderr: %q", in.ErrorMessage)
	}
	if in.ErrorKind != "transport" || in.ErrorMessage != source.KindTransport.Summary() {
		t.Errorf("input = %+v", in)
	}
}

func TestRecorder_LockedDatabaseDoesNotStall(t *testing.T) {
	st, path := openTestStore(t)

	locker, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	defer func() { _ = locker.Close() }()

	ctx := context.Background()
	conn, err := locker.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Fatalf("lock database: %v", err)
	}

	start := time.Now()
	NewRecorder(st, nil).ObserveFetch(timeline.FetchRecord{
		Callback: timeline.CallbackTimeline, Source: "json", StartedAt: start, FinishedAt: start,
	})
	if elapsed := time.Since(start); elapsed > recordTimeout+time.Second {
		t.Fatalf("ObserveFetch blocked for %s", elapsed)
	}

	if _, err := conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		t.Fatalf("unlock database: %v", err)
	}
	runs, err := st.Recent(ctx, 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("runs = %d, want 0 while locked", len(runs))
	}
}
