package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factpane/internal/timeline"
	"github.com/ppiankov/factpane/internal/view"
)

var (
	outputFormat string
	noColor      bool
	preview      bool
)

var placeholderCmd = &cobra.Command{
	Use:   "placeholder",
	Short: "Print the placeholder entry without fetching",
	RunE:  placeholderAction,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch once and print a preview entry",
	RunE:  snapshotAction,
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Fetch once and print the timeline with its refresh policy",
	RunE:  timelineAction,
}

func init() {
	for _, cmd := range []*cobra.Command{placeholderCmd, snapshotCmd, timelineCmd} {
		addRenderFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	snapshotCmd.Flags().BoolVar(&preview, "preview", true, "mark the request as a gallery preview")
}

func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outputFormat, "format", view.FormatTerminal, "output format: terminal, json, markdown")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func placeholderAction(_ *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.renderer(outputFormat, noColor)
	if err != nil {
		return err
	}
	hctx := a.widgetContext(true)
	entry := a.provider.Placeholder(hctx, time.Now())
	return r.Render(os.Stdout, view.Frame{Entry: entry, Configuration: hctx.Configuration})
}

func snapshotAction(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{record: true})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.renderer(outputFormat, noColor)
	if err != nil {
		return err
	}
	hctx := a.widgetContext(preview)
	entry, err := a.provider.Snapshot(commandContext(cmd), hctx, time.Now())
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return r.Render(os.Stdout, view.Frame{Entry: entry, Configuration: hctx.Configuration, Source: a.fetcher.Name()})
}

func timelineAction(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{record: true})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.renderer(outputFormat, noColor)
	if err != nil {
		return err
	}
	hctx := a.widgetContext(false)
	now := time.Now()
	tl, err := a.provider.Timeline(commandContext(cmd), hctx, now)
	if err != nil {
		return fmt.Errorf("timeline: %w", err)
	}

	policy := tl.Policy
	if len(tl.Entries) == 0 {
		return r.Render(os.Stdout, view.Frame{
			Entry:         timeline.Entry{Date: now, Texts: []string{}},
			Policy:        &policy,
			Configuration: hctx.Configuration,
			Source:        a.fetcher.Name(),
		})
	}
	for _, e := range tl.Entries {
		if err := r.Render(os.Stdout, view.Frame{Entry: e, Policy: &policy, Configuration: hctx.Configuration, Source: a.fetcher.Name()}); err != nil {
			return err
		}
	}
	return nil
}
