package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factpane/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s. Try 'factpane snapshot'.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# factpane configuration

source:
  kind: json            # json, feed or command
  url: "https://meowfacts.herokuapp.com/?count=1"
  count: 1
  timeout: 30s
  # kind: feed
  # url: "https://example.com/feed.xml"
  # kind: command
  # command:
  #   path: ./scripts/facts.sh
  #   args: []

refresh:
  interval: 3m
  placeholder_text: Empty
  trigger_file: reload  # relative to this directory

storage:
  path: .factpane/factpane.db
  retain_days: 14

display:
  width: 40
  color: true
  redact:
    enabled: false
    patterns: []

server:
  addr: "127.0.0.1:8787"

log:
  level: info
  format: text

widget:
  favorite_emoji: ""
`
