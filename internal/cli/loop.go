package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factpane/internal/host"
)

// runLoop runs h until ctx ends, with SIGHUP and the trigger file as reload
// triggers. extra adds goroutines to the same group.
func runLoop(ctx context.Context, a *app, h *host.Host, extra func(g *errgroup.Group, gctx context.Context)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tw, err := host.NewTriggerWatcher(a.cfg.Refresh.TriggerFile, a.logger.With("component", "watcher"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error {
		return tw.Run(gctx, func() { h.Trigger(host.OriginFile) })
	})
	g.Go(func() error { return forwardReloadSignals(gctx, h) })
	if extra != nil {
		extra(g, gctx)
	}

	a.logger.Info("host loop started", "source", a.fetcher.Name(),
		"interval", a.cfg.Refresh.Interval.Duration.String(), "trigger_file", tw.Path())
	return g.Wait()
}

func forwardReloadSignals(ctx context.Context, h *host.Host) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			h.Trigger(host.OriginSignal)
		}
	}
}
