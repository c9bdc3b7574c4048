package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wsideid/internal/logging"
)

func TestLogsFiltersByItem(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	content := strings.Join([]string{
		`{"level":"info","msg":"moved","item_id":"i1"}`,
		`{"level":"info","msg":"redacted","item_id":"i2"}`,
		`{"level":"error","msg":"export failed","item_id":"i2"}`,
	}, "\n") + "\n"
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, logging.LogFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--item", "i2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "redacted")
	requireContains(t, out, "export failed")
	if strings.Contains(out, "moved") {
		t.Fatalf("unexpected line for another item: %q", out)
	}

	out, _, err = runCLI(t, []string{"logs", "--item", "i2", "--level", "error"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "redacted") || !strings.Contains(out, "export failed") {
		t.Fatalf("unexpected level filtering: %q", out)
	}
}
