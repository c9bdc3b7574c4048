package main

import (
	"os"
	"path/filepath"
	"testing"

	"wsideid/internal/config"
	"wsideid/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
}

func TestConfigValidateReportsUnboundRoles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, path, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "workflow roles are unbound")
}

func TestSetupBindsEveryRole(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, path, cfg)

	out, _, err := runCLI(t, []string{"setup"}, path)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	requireContains(t, out, "Saved folder bindings")

	reloaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	first := reloaded.RoleBindings()
	for _, role := range config.RoleNames() {
		if first[role] == "" {
			t.Fatalf("role %s left unbound", role)
		}
	}

	out, _, err = runCLI(t, []string{"setup"}, path)
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}
	requireContains(t, out, "kept")
	reloaded, _, _, err = config.Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	for role, id := range reloaded.RoleBindings() {
		if first[role] != id {
			t.Fatalf("role %s rebound from %s to %s", role, first[role], id)
		}
	}
}
