package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeObjectFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func padJSON(length, color string) string {
	return fmt.Sprintf(`{"type_id": "PartDesign::Pad", "name": "Pad", "label": "Pad", "visibility": true,
 "properties": {"Length": %s, "Color": %q}}`, length, color)
}

func TestResolveCmd_NumericOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	base := writeObjectFile(t, dir, "base.json", padJSON("10.0", "red"))
	ours := writeObjectFile(t, dir, "ours.json", padJSON("12.0", "red"))
	theirs := writeObjectFile(t, dir, "theirs.json", padJSON("14.0", "red"))

	out := mustRunCLI(t, "resolve", "--base", base, "--ours", ours, "--theirs", theirs)
	for _, want := range []string{`"category": "numeric"`, `"resolution_type": "auto_numeric"`, `"Length": 13.0`} {
		if !strings.Contains(out, want) {
			t.Fatalf("resolve output missing %s:\n%s", want, out)
		}
	}
}

func TestResolveCmd_TrivialTakesTheirs(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	base := writeObjectFile(t, dir, "base.json", padJSON("10.0", "red"))
	ours := writeObjectFile(t, dir, "ours.json", padJSON("10.0", "green"))
	theirs := writeObjectFile(t, dir, "theirs.json", padJSON("10.0", "blue"))

	out := mustRunCLI(t, "resolve", "--base", base, "--ours", ours, "--theirs", theirs)
	if !strings.Contains(out, `"resolution_type": "auto_trivial"`) || !strings.Contains(out, `"Color": "blue"`) {
		t.Fatalf("resolve output = %s", out)
	}
}

func TestResolveCmd_DeletionNeedsDecision(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	base := writeObjectFile(t, dir, "base.json", padJSON("10.0", "red"))
	theirs := writeObjectFile(t, dir, "theirs.json", padJSON("14.0", "red"))

	out, err := runCLI(t, "resolve", "--base", base, "--theirs", theirs)
	if err == nil || !strings.Contains(err.Error(), "manual decision") {
		t.Fatalf("resolve error = %v", err)
	}
	if !strings.Contains(out, `"conflict_type": "delete-modify"`) || !strings.Contains(out, `"category": "complex"`) {
		t.Fatalf("resolve output = %s", out)
	}

	out = mustRunCLI(t, "resolve", "--base", base, "--theirs", theirs, "--strategy", "theirs")
	if !strings.Contains(out, `"resolution_type": "keep_theirs"`) {
		t.Fatalf("resolve --strategy theirs output = %s", out)
	}
}

func TestResolveCmd_Validation(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if _, err := runCLI(t, "resolve"); err == nil {
		t.Fatal("resolve without versions succeeded")
	}
	ours := writeObjectFile(t, dir, "ours.json", `{"type_id": "Part::Box"}`)
	if _, err := runCLI(t, "resolve", "--ours", ours, "--theirs", ours); err == nil {
		t.Fatal("resolve of an unnamed object succeeded")
	}
	if _, err := runCLI(t, "resolve", "--ours", ours, "--strategy", "coinflip"); err == nil {
		t.Fatal("resolve with an unknown strategy succeeded")
	}
}
