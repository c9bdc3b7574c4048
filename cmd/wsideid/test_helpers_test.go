package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wsideid/internal/config"
	"wsideid/internal/store"
	"wsideid/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	roles      testsupport.Roles
}

// setupCLITestEnv writes a config with bound role folders. The seed callback
// runs against a store that is closed before any command opens its own.
func setupCLITestEnv(t *testing.T, seed func(*store.Store, testsupport.Roles)) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	roles := testsupport.MustSetupRoles(t, st, cfg)
	if seed != nil {
		seed(st, roles)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, roles: roles}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--user", "tester"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func openStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, cfg)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
