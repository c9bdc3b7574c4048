package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", "exit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" || results[0].Path != present {
		t.Fatalf("unexpected status for available dependency: %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" || !results[2].Satisfied() {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestCheckBinariesReportsVersion(t *testing.T) {
	binDir := t.TempDir()
	tool := writeStub(t, binDir, "tesseract", "echo\necho 'tesseract 5.3.0'\necho 'leptonica-1.82.0'\n")

	results := CheckBinaries([]Requirement{{Name: "Tesseract", Command: tool, VersionArgs: []string{"--version"}}})
	if results[0].Version != "tesseract 5.3.0" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
}

func TestProbeVersionFailingTool(t *testing.T) {
	tool := writeStub(t, t.TempDir(), "broken", "exit 3\n")
	if got := ProbeVersion(tool, "--version"); got != "" {
		t.Fatalf("expected empty version, got %q", got)
	}
	if got := ProbeVersion(filepath.Join(t.TempDir(), "absent")); got != "" {
		t.Fatalf("expected empty version for absent tool, got %q", got)
	}
}
