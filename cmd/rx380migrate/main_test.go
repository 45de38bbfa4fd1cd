package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dbEnabled bool) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	enabled := "false"
	if dbEnabled {
		enabled = "true"
	}
	content := `
site:
  id: test-site
sinks:
  csv:
    enabled: true
    folder: ` + filepath.Join(dir, "csv") + `
database:
  enabled: ` + enabled + `
  path: ` + filepath.Join(dir, "rx380.db") + `
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func countPrefix(out, prefix string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestRun_UpDownStatus(t *testing.T) {
	path := writeConfig(t, true)

	out, err := runCommand(t, "-config", path)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if countPrefix(out, "applied") != 0 || countPrefix(out, "pending") != 2 {
		t.Errorf("fresh status = %q, want 2 pending", out)
	}

	out, err = runCommand(t, "-config", path, "up")
	if err != nil {
		t.Fatalf("up error = %v", err)
	}
	if countPrefix(out, "applied") != 2 || countPrefix(out, "pending") != 0 {
		t.Errorf("status after up = %q, want 2 applied", out)
	}

	out, err = runCommand(t, "-config", path, "down")
	if err != nil {
		t.Fatalf("down error = %v", err)
	}
	if countPrefix(out, "applied") != 1 || !strings.Contains(out, "pending  20260102_000000  pipeline_events") {
		t.Errorf("status after down = %q, want pipeline_events pending", out)
	}

	if _, err := runCommand(t, "-config", path, "down"); err != nil {
		t.Fatalf("second down error = %v", err)
	}
	if _, err := runCommand(t, "-config", path, "down"); err == nil || !strings.Contains(err.Error(), "nothing to roll back") {
		t.Errorf("down on empty history error = %v, want nothing to roll back", err)
	}
}

func TestRun_Errors(t *testing.T) {
	withDB := writeConfig(t, true)
	withoutDB := writeConfig(t, false)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"database disabled", []string{"-config", withoutDB, "status"}, "database.enabled"},
		{"unknown command", []string{"-config", withDB, "redo"}, "unknown command"},
		{"two commands", []string{"-config", withDB, "up", "down"}, "expected one command"},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "nope.yaml"), "status"}, "loading config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
