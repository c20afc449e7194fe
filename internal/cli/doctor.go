package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factpane/internal/config"
	"github.com/ppiankov/factpane/internal/privacy"
	"github.com/ppiankov/factpane/internal/source"
	"github.com/ppiankov/factpane/internal/store"
)

const staleSuccess = 24 * time.Hour

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, storage, and the configured source",
	RunE:  doctorAction,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip the live fetch check")
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s (run 'factpane init')", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config.yaml (source %s, refresh every %s)", cfg.Source.Kind, cfg.Refresh.Interval.Duration)

	// Redaction patterns
	if _, err := privacy.NewRedactor(cfg.Display.Redact.Enabled, cfg.Display.Redact.Patterns); err != nil {
		printCheck(false, "display.redact: %v", err)
		ok = false
	} else if cfg.Display.Redact.Enabled {
		printCheck(true, "display.redact (%d patterns)", len(cfg.Display.Redact.Patterns))
	}

	// Database
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "database %s", cfg.Storage.Path)
	}

	// Trigger file directory
	triggerDir := filepath.Dir(cfg.Refresh.TriggerFile)
	if info, err := os.Stat(triggerDir); err != nil || !info.IsDir() {
		printCheck(false, "trigger directory %s", triggerDir)
		ok = false
	} else {
		printCheck(true, "trigger file %s", cfg.Refresh.TriggerFile)
	}

	ctx := commandContext(cmd)

	// Source
	fetcher, err := buildFetcher(cfg.Source)
	if err != nil {
		printCheck(false, "source: %v", err)
		ok = false
	} else if !doctorOffline {
		if !checkSource(ctx, fetcher) {
			ok = false
		}
	}

	// Refresh health (info-level, non-fatal)
	if db != nil {
		checkRefreshHealth(ctx, db)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkSource(ctx context.Context, f source.Fetcher) bool {
	start := time.Now()
	texts, err := f.Fetch(ctx)
	took := time.Since(start).Round(time.Millisecond)
	if err != nil {
		printCheck(false, "source %s: %s error after %s: %v", f.Name(), source.KindOf(err), took, err)
		return false
	}
	printCheck(true, "source %s (%d texts in %s)", f.Name(), len(texts), took)
	return true
}

func checkRefreshHealth(ctx context.Context, db *store.Store) {
	// Look back 7 days for refresh health assessment
	summary, err := db.Summary(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil || summary.Total == 0 {
		return // no data yet, skip
	}
	fmt.Println()

	failures := summary.ByOutcome[store.OutcomeFailure]
	if summary.LastSuccess.IsZero() {
		printInfo("no successful refresh in the last 7 days (%d failures)", failures)
	} else if age := time.Since(summary.LastSuccess); age > staleSuccess {
		printInfo("stale: last successful refresh %d hours ago", int(age.Hours()))
	}
	if summary.Total >= 10 {
		rate := pct(failures, summary.Total)
		if rate > 50 {
			printInfo("unreliable source: %.0f%% of %d refreshes failed in the last 7 days", rate, summary.Total)
		}
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
