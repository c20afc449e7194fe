package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/factpane/internal/config"
	"github.com/ppiankov/factpane/internal/logging"
	"github.com/ppiankov/factpane/internal/metrics"
	"github.com/ppiankov/factpane/internal/privacy"
	"github.com/ppiankov/factpane/internal/source"
	"github.com/ppiankov/factpane/internal/store"
	"github.com/ppiankov/factpane/internal/timeline"
	"github.com/ppiankov/factpane/internal/view"
)

// app bundles what every command builds from the config directory.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	fetcher  source.Fetcher
	db       *store.Store
	metrics  *metrics.Metrics
	provider *timeline.Provider
}

type appOptions struct {
	// record opens the refresh log and attaches it to the provider.
	record bool
	// registry, when set, receives the Prometheus collectors.
	registry prometheus.Registerer
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(os.Stderr, level, cfg.Log.Format)

	fetcher, err := buildFetcher(cfg.Source)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, fetcher: fetcher}
	providerOpts := []timeline.Option{
		timeline.WithInterval(cfg.Refresh.Interval.Duration),
		timeline.WithPlaceholderText(cfg.Refresh.PlaceholderText),
		timeline.WithLogger(logger.With("component", "timeline")),
	}

	if opts.record {
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.db = db
		providerOpts = append(providerOpts,
			timeline.WithObserver(store.NewRecorder(db, logger.With("component", "store"))))
	}
	if opts.registry != nil {
		a.metrics = metrics.New(opts.registry)
		providerOpts = append(providerOpts, timeline.WithObserver(a.metrics))
	}

	a.provider = timeline.NewProvider(fetcher, providerOpts...)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// widgetContext is the host context for every callback.
func (a *app) widgetContext(preview bool) timeline.Context {
	return timeline.Context{
		IsPreview:     preview,
		Configuration: timeline.Configuration{FavoriteEmoji: a.cfg.Widget.FavoriteEmoji},
	}
}

// renderer builds the output renderer, honoring --no-color and redaction.
func (a *app) renderer(format string, noColor bool) (view.Renderer, error) {
	redactor, err := privacy.NewRedactor(a.cfg.Display.Redact.Enabled, a.cfg.Display.Redact.Patterns)
	if err != nil {
		return nil, fmt.Errorf("compile redact patterns: %w", err)
	}
	return view.New(format, view.Options{
		Width:    a.cfg.Display.Width,
		Color:    a.cfg.Display.ColorEnabled() && !noColor && colorTerminal(os.Stdout),
		Redactor: redactor,
	})
}

// prune drops refresh log rows past the retention window.
func (a *app) prune(ctx context.Context) {
	if a.db == nil || a.cfg.Storage.RetainDays <= 0 {
		return
	}
	n, err := a.db.Prune(ctx, a.cfg.Storage.RetainDays)
	if err != nil {
		a.logger.Warn("prune refresh log", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("pruned refresh log", "runs", n)
	}
}

// colorTerminal reports whether f is a terminal that accepts ANSI colors.
func colorTerminal(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func buildFetcher(sc config.SourceConfig) (source.Fetcher, error) {
	switch sc.Kind {
	case "json":
		return source.NewJSON(sc.URL, sc.Count, sc.Timeout.Duration), nil
	case "feed":
		return source.NewFeed(sc.URL, sc.Count, sc.Timeout.Duration), nil
	case "command":
		return source.NewCommand(sc.Command.Path, sc.Command.Args, sc.Timeout.Duration), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// commandContext returns cmd's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
