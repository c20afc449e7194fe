package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// factServer serves {"data": [...]} bodies and counts requests.
type factServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newFactServer(t *testing.T, body string) *factServer {
	t.Helper()

	fs := &factServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fs.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

// setupConfigDir points configDir at a fresh directory whose config reads
// from endpoint and keeps its database under the same temp dir.
func setupConfigDir(t *testing.T, endpoint string) string {
	t.Helper()

	oldConfigDir := configDir
	oldFormat, oldNoColor, oldLogLevel := outputFormat, noColor, logLevel
	t.Cleanup(func() {
		configDir = oldConfigDir
		outputFormat, noColor, logLevel = oldFormat, oldNoColor, oldLogLevel
	})

	tmpDir := t.TempDir()
	configDir = filepath.Join(tmpDir, "conf")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}

	cfg := fmt.Sprintf(`source:
  kind: json
  url: %q
refresh:
  interval: 1m
storage:
  path: %q
display:
  width: 40
  color: false
log:
  level: error
widget:
  favorite_emoji: "😺"
`, endpoint, filepath.Join(tmpDir, "factpane.db"))
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	outputFormat, noColor, logLevel = "terminal", true, ""
	return tmpDir
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
