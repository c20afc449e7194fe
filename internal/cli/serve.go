package cli

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factpane/internal/host"
	"github.com/ppiankov/factpane/internal/server"
	"github.com/ppiankov/factpane/internal/timeline"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the refresh loop and serve the callbacks over HTTP",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(appOptions{record: true, registry: reg})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	a.prune(ctx)

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	hctx := a.widgetContext(false)
	h := host.New(a.provider,
		host.WithContext(hctx),
		host.WithRecorder(a.metrics),
		host.WithLogger(a.logger.With("component", "host")),
		host.OnEntry(func(e timeline.Entry, p timeline.Policy) {
			a.logger.Debug("entry on display", "texts", len(e.Texts), "policy", p.String())
		}),
	)

	srv := server.New(server.Options{
		Provider:      a.provider,
		Host:          h,
		Configuration: hctx.Configuration,
		Gatherer:      reg,
		Logger:        a.logger.With("component", "http"),
	})

	return runLoop(ctx, a, h, func(g *errgroup.Group, gctx context.Context) {
		g.Go(func() error { return srv.Start(addr) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	})
}
