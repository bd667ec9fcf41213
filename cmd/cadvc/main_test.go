package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args and returns its stdout.
// Log lines go to stderr and are kept out of the result.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLIWithLogs(t, args...)
	return out, err
}

func runCLIWithLogs(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), logs.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, logs, err := runCLIWithLogs(t, args...)
	if err != nil {
		t.Fatalf("cadvc %s: %v\noutput:\n%s\nlogs:\n%s", strings.Join(args, " "), err, out, logs)
	}
	return out
}

// initCLIRepo creates a repository in a temp dir and makes it the working
// directory.
func initCLIRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("USER", "tester")
	mustRunCLI(t, "init")
	return dir
}

// writeSnapshot writes a two-object bracket document.
func writeSnapshot(t *testing.T, path string, length float64, material string) {
	t.Helper()
	doc := fmt.Sprintf(`{
  "objects": [
    {"TypeId": "Part::Box", "Name": "Bracket", "Label": "Bracket",
     "Properties": {"Length": %.1f, "Width": 4.0, "Material": %q}},
    {"TypeId": "Sketcher::SketchObject", "Name": "Sketch", "Label": "Base sketch",
     "Properties": {"Constraints": 12}}
  ]
}`, length, material)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	out := mustRunCLI(t, "version")
	if !strings.Contains(out, "cadvc "+version) {
		t.Fatalf("version output = %q", out)
	}
}

func TestInitCmd(t *testing.T) {
	dir := initCLIRepo(t)
	if _, err := os.Stat(filepath.Join(dir, ".cadvc", "config.toml")); err != nil {
		t.Fatalf("config missing after init: %v", err)
	}
	if _, err := runCLI(t, "init"); err == nil {
		t.Fatal("second init succeeded")
	}
}

func TestInitCmd_SQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	out := mustRunCLI(t, "init", "--backend", "sqlite", "cad")
	if !strings.Contains(out, "initialized empty cadvc repository") {
		t.Fatalf("init output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "cad", ".cadvc", "objects.db")); err != nil {
		t.Fatalf("objects.db missing: %v", err)
	}
}

func TestCommandsOutsideRepository(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, args := range [][]string{{"log"}, {"branch"}, {"stats"}, {"verify"}} {
		if _, err := runCLI(t, args...); err == nil || !strings.Contains(err.Error(), "not a cadvc repository") {
			t.Fatalf("cadvc %s error = %v, want not a cadvc repository", args[0], err)
		}
	}
}

func TestLogCmd_EmptyRepository(t *testing.T) {
	initCLIRepo(t)
	if out := mustRunCLI(t, "log"); !strings.Contains(out, "no commits yet") {
		t.Fatalf("log output = %q", out)
	}
}
