package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/cadvc/pkg/object"
)

// zeroHash stands in for the missing side of a branch creation or deletion.
const zeroHash = object.Hash("0000000000000000000000000000000000000000000000000000000000000000")

func reflogPath(dir, ref string) string {
	return filepath.Join(dir, "logs", filepath.FromSlash(ref))
}

// formatReflogLine renders one move as "old new unix reason". Whitespace
// in the reason collapses to single spaces so the line stays parseable.
func formatReflogLine(oldHash, newHash object.Hash, when time.Time, reason string) string {
	if strings.TrimSpace(string(oldHash)) == "" {
		oldHash = zeroHash
	}
	if strings.TrimSpace(string(newHash)) == "" {
		newHash = zeroHash
	}
	reason = strings.Join(strings.Fields(reason), " ")
	if reason == "" {
		reason = "update"
	}
	return fmt.Sprintf("%s %s %d %s\n", oldHash, newHash, when.Unix(), reason)
}

func parseReflogLine(ref, line string) (ReflogEntry, bool) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 4)
	if len(fields) != 4 {
		return ReflogEntry{}, false
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	return ReflogEntry{
		Ref:       ref,
		OldHash:   object.Hash(fields[0]),
		NewHash:   object.Hash(fields[1]),
		Timestamp: ts,
		Reason:    fields[3],
	}, true
}

func appendReflog(dir, ref string, oldHash, newHash object.Hash, when time.Time, reason string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	path := reflogPath(dir, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	if _, err := f.WriteString(formatReflogLine(oldHash, newHash, when, reason)); err != nil {
		f.Close()
		return fmt.Errorf("reflog write: %w", err)
	}
	return f.Close()
}

// readReflog returns the moves of ref newest first. Malformed lines are
// skipped; a ref that never moved has an empty log.
func readReflog(dir, ref string, limit int) ([]ReflogEntry, error) {
	ref = reflogRefName(ref)
	data, err := os.ReadFile(reflogPath(dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	lines := bytes.Split(data, []byte("\n"))
	var entries []ReflogEntry
	for i := len(lines) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) == limit {
			break
		}
		if e, ok := parseReflogLine(ref, string(lines[i])); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
