package main

import (
	"path/filepath"
	"testing"
)

func TestRunVersionCommand(t *testing.T) {
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"unknown-command"}); code == 0 {
		t.Fatalf("expected non-zero exit code for unknown command")
	}
}

func TestRunWithoutConfig(t *testing.T) {
	t.Setenv("ACCTL_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	if code := run([]string{"status"}); code == 0 {
		t.Fatalf("expected non-zero exit code without a config file")
	}
}
