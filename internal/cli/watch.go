package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factpane/internal/host"
	"github.com/ppiankov/factpane/internal/timeline"
	"github.com/ppiankov/factpane/internal/view"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the pane on screen and refresh it per its policy",
	Long: "watch runs the refresh loop in the foreground and redraws the pane after every timeline. " +
		"Send SIGHUP or touch the trigger file to reload early.",
	RunE: watchAction,
}

func init() {
	addRenderFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func watchAction(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{record: true})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.renderer(outputFormat, noColor)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a.prune(ctx)

	hctx := a.widgetContext(false)
	h := host.New(a.provider,
		host.WithContext(hctx),
		host.WithLogger(a.logger.With("component", "host")),
		host.OnEntry(func(e timeline.Entry, p timeline.Policy) {
			fmt.Fprintln(os.Stdout)
			if err := r.Render(os.Stdout, view.Frame{Entry: e, Policy: &p, Configuration: hctx.Configuration, Source: a.fetcher.Name()}); err != nil {
				a.logger.Warn("render entry", "error", err)
			}
		}),
	)
	return runLoop(ctx, a, h, nil)
}
