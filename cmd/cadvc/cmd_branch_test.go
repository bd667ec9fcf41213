package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestBranchCmd(t *testing.T) {
	dir := initCLIRepo(t)
	snap := filepath.Join(dir, "bracket.json")
	writeSnapshot(t, snap, 10, "Steel")
	mustRunCLI(t, "commit", snap, "-m", "first")

	out := mustRunCLI(t, "branch", "feature/fillet")
	if !strings.Contains(out, "created branch 'feature/fillet'") {
		t.Fatalf("branch create output = %q", out)
	}

	out = mustRunCLI(t, "branch", "-v")
	if !strings.Contains(out, "  feature/fillet ") || !strings.Contains(out, "* main ") || !strings.Contains(out, "[protected]") {
		t.Fatalf("branch list output = %q", out)
	}

	if _, err := runCLI(t, "branch", "feature/fillet"); err == nil {
		t.Fatal("duplicate branch succeeded")
	}
	if _, err := runCLI(t, "branch", "bad..name"); err == nil {
		t.Fatal("invalid branch name succeeded")
	}
	if _, err := runCLI(t, "branch", "-d", "main"); err == nil {
		t.Fatal("deleting a protected branch succeeded")
	}

	out = mustRunCLI(t, "branch", "-d", "feature/fillet")
	if !strings.Contains(out, "deleted branch 'feature/fillet'") {
		t.Fatalf("branch delete output = %q", out)
	}
	if out := mustRunCLI(t, "branch"); strings.Contains(out, "feature/fillet") {
		t.Fatalf("deleted branch still listed: %q", out)
	}
}

func TestTagCmd(t *testing.T) {
	dir := initCLIRepo(t)
	snap := filepath.Join(dir, "bracket.json")
	writeSnapshot(t, snap, 10, "Steel")
	mustRunCLI(t, "commit", snap, "-m", "first")

	out := mustRunCLI(t, "tag", "v1.0", "-m", "first release", "--release", "Q3")
	if !strings.Contains(out, "as 'v1.0'") {
		t.Fatalf("tag output = %q", out)
	}
	mustRunCLI(t, "tag", "approved", "v1.0")

	out = mustRunCLI(t, "tag")
	if out != "approved\nv1.0\n" {
		t.Fatalf("tag list = %q", out)
	}
	if _, err := runCLI(t, "tag", "v1.0"); err == nil {
		t.Fatal("re-creating a tag succeeded")
	}
}
