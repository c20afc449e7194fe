package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/ppiankov/factpane/internal/config"
	"github.com/ppiankov/factpane/internal/store"
)

var (
	historySince    string
	historyLimit    int
	historyCallback string
	historyFormat   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent refresh runs and their outcomes",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "7d", "summary window (e.g. 7d, 48h)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of recent runs to list")
	historyCmd.Flags().StringVar(&historyCallback, "callback", "", "only show snapshot or timeline runs")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	sinceDur, err := parseDuration(historySince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	ctx := commandContext(cmd)
	summary, err := db.Summary(ctx, time.Now().Add(-sinceDur))
	if err != nil {
		return fmt.Errorf("summarize runs: %w", err)
	}
	runs, err := db.Recent(ctx, historyLimit, historyCallback)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	switch historyFormat {
	case "json":
		return printHistoryJSON(os.Stdout, summary, runs, sinceDur)
	case "terminal", "":
		printHistory(os.Stdout, summary, runs, sinceDur)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}
}

type jsonHistory struct {
	Since   string      `json:"since"`
	Summary jsonSummary `json:"summary"`
	Runs    []jsonRun   `json:"runs"`
}

type jsonSummary struct {
	Total       int            `json:"total"`
	ByOutcome   map[string]int `json:"by_outcome"`
	ByErrorKind map[string]int `json:"by_error_kind"`
	LastSuccess *time.Time     `json:"last_success,omitempty"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
}

type jsonRun struct {
	ID            string     `json:"id"`
	Callback      string     `json:"callback"`
	Source        string     `json:"source"`
	StartedAt     time.Time  `json:"started_at"`
	DurationMS    int64      `json:"duration_ms"`
	Outcome       string     `json:"outcome"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Policy        string     `json:"policy,omitempty"`
	NextRefreshAt *time.Time `json:"next_refresh_at,omitempty"`
	TextCount     int        `json:"text_count"`
}

func printHistoryJSON(w io.Writer, summary store.Summary, runs []store.Run, since time.Duration) error {
	out := jsonHistory{
		Since: formatHistoryDuration(since),
		Summary: jsonSummary{
			Total:       summary.Total,
			ByOutcome:   summary.ByOutcome,
			ByErrorKind: summary.ByErrorKind,
			LastSuccess: optionalTime(summary.LastSuccess),
			LastRun:     optionalTime(summary.LastRun),
		},
		Runs: make([]jsonRun, 0, len(runs)),
	}
	for _, r := range runs {
		out.Runs = append(out.Runs, jsonRun{
			ID:            r.ID,
			Callback:      r.Callback,
			Source:        r.Source,
			StartedAt:     r.StartedAt,
			DurationMS:    r.Duration().Milliseconds(),
			Outcome:       r.Outcome,
			ErrorKind:     r.ErrorKind,
			ErrorMessage:  r.ErrorMessage,
			Policy:        r.Policy,
			NextRefreshAt: optionalTime(r.NextRefreshAt),
			TextCount:     r.TextCount,
		})
	}

	data, err := sonic.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printHistory(w io.Writer, summary store.Summary, runs []store.Run, since time.Duration) {
	fmt.Fprintf(w, "factpane history — %s, %d runs\n\n", formatHistoryDuration(since), summary.Total)

	if summary.Total == 0 && len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded. Run 'factpane timeline' or 'factpane watch' first.")
		return
	}

	fmt.Fprintln(w, "--- Outcomes ---")
	fmt.Fprintln(w)
	for _, outcome := range []string{store.OutcomeSuccess, store.OutcomeFailure, store.OutcomeCancelled} {
		n := summary.ByOutcome[outcome]
		fmt.Fprintf(w, "  %-10s %5d  (%.1f%%)\n", outcome+":", n, pct(n, summary.Total))
	}
	if len(summary.ByErrorKind) > 0 {
		kinds := make([]string, 0, len(summary.ByErrorKind))
		for k := range summary.ByErrorKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-16s %5d\n", k+":", summary.ByErrorKind[k])
		}
	}
	if !summary.LastSuccess.IsZero() {
		fmt.Fprintf(w, "\n  last success: %s (%s ago)\n",
			summary.LastSuccess.Local().Format(time.DateTime), time.Since(summary.LastSuccess).Round(time.Second))
	}
	fmt.Fprintln(w)

	if len(runs) == 0 {
		return
	}
	fmt.Fprintf(w, "--- Recent Runs (%d) ---\n\n", len(runs))
	fmt.Fprintf(w, "  %-19s  %-8s  %-9s  %-15s  %-5s  %8s  %5s\n",
		"Started", "Callback", "Outcome", "Error", "Next", "Took", "Texts")
	for _, r := range runs {
		next := "-"
		if !r.NextRefreshAt.IsZero() {
			next = r.NextRefreshAt.Local().Format("15:04")
		} else if r.Policy == "never" {
			next = "never"
		}
		errKind := r.ErrorKind
		if errKind == "" {
			errKind = "-"
		}
		fmt.Fprintf(w, "  %-19s  %-8s  %-9s  %-15s  %-5s  %8s  %5d\n",
			r.StartedAt.Local().Format(time.DateTime), r.Callback, r.Outcome, errKind, next,
			r.Duration().Round(time.Millisecond), r.TextCount)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatHistoryDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
