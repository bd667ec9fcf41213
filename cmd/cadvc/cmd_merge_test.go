package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// divergeBracket commits a base on main, then moves main and feature to
// different lengths and materials.
func divergeBracket(t *testing.T, mainLen, featureLen float64, mainMat, featureMat string) string {
	t.Helper()
	dir := initCLIRepo(t)
	snap := filepath.Join(dir, "bracket.json")

	writeSnapshot(t, snap, 10, "Steel")
	mustRunCLI(t, "commit", snap, "-m", "base")
	mustRunCLI(t, "branch", "feature")

	writeSnapshot(t, snap, mainLen, mainMat)
	mustRunCLI(t, "commit", snap, "-m", "main change")
	writeSnapshot(t, snap, featureLen, featureMat)
	mustRunCLI(t, "commit", snap, "-b", "feature", "-m", "feature change")
	return dir
}

func TestMergeCmd_FastForward(t *testing.T) {
	dir := initCLIRepo(t)
	snap := filepath.Join(dir, "bracket.json")
	writeSnapshot(t, snap, 10, "Steel")
	mustRunCLI(t, "commit", snap, "-m", "base")
	mustRunCLI(t, "branch", "feature")
	writeSnapshot(t, snap, 11, "Steel")
	mustRunCLI(t, "commit", snap, "-b", "feature", "-m", "longer")

	out := mustRunCLI(t, "merge", "feature")
	if !strings.Contains(out, "fast-forward main to ") {
		t.Fatalf("merge output = %q", out)
	}
	if out := mustRunCLI(t, "merge", "feature"); !strings.Contains(out, "already up to date") {
		t.Fatalf("second merge output = %q", out)
	}
	if out := mustRunCLI(t, "log", "--oneline", "-n", "1"); !strings.Contains(out, "longer") {
		t.Fatalf("main head after fast-forward = %q", out)
	}
}

func TestMergeCmd_NumericAutoResolve(t *testing.T) {
	divergeBracket(t, 12, 14, "Steel", "Steel")

	out := mustRunCLI(t, "merge", "feature", "-m", "merge feature")
	for _, want := range []string{"Bracket: modify-modify -> auto_numeric", "auto-resolved 1 conflict", "[main ", "merge feature"} {
		if !strings.Contains(out, want) {
			t.Fatalf("merge output missing %q:\n%s", want, out)
		}
	}

	out = mustRunCLI(t, "show", "--json")
	if !strings.Contains(out, `"merge_strategy"`) {
		t.Fatalf("merge commit metadata missing strategy:\n%s", out)
	}
}

func TestMergeCmd_UnresolvedLeavesBranch(t *testing.T) {
	// Both sides edit the Material string, which auto cannot settle.
	divergeBracket(t, 10, 10, "Brass", "Titanium")
	before := mustRunCLI(t, "log", "--oneline", "-n", "1")

	out, err := runCLI(t, "merge", "feature")
	if err == nil || !strings.Contains(err.Error(), "1 unresolved conflict") {
		t.Fatalf("merge error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "manual_required") || !strings.Contains(out, "main unchanged") {
		t.Fatalf("merge output = %q", out)
	}
	if after := mustRunCLI(t, "log", "--oneline", "-n", "1"); after != before {
		t.Fatalf("main moved after a failed merge: %q -> %q", before, after)
	}

	out = mustRunCLI(t, "merge", "feature", "--strategy", "theirs")
	if !strings.Contains(out, "keep_theirs") {
		t.Fatalf("merge --strategy theirs output = %q", out)
	}
	raw, err := os.ReadFile("bracket.json")
	if err != nil || !strings.Contains(string(raw), "Titanium") {
		t.Fatalf("merge touched the snapshot file: %v\n%s", err, raw)
	}
}

func TestMergeCmd_BadStrategy(t *testing.T) {
	divergeBracket(t, 12, 14, "Steel", "Steel")
	if _, err := runCLI(t, "merge", "feature", "--strategy", "coinflip"); err == nil {
		t.Fatal("merge with an unknown strategy succeeded")
	}
}
