package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factpane/internal/config"
	"github.com/ppiankov/factpane/internal/host"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask a running watch or serve loop to refresh now",
	Long:  "reload touches the trigger file watched by 'factpane watch' and 'factpane serve'.",
	RunE:  reloadAction,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

func reloadAction(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := host.Touch(cfg.Refresh.TriggerFile); err != nil {
		return err
	}
	fmt.Printf("Reload requested via %s\n", cfg.Refresh.TriggerFile)
	return nil
}
