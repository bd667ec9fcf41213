package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

var ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// FileRefStore keeps refs as files below dir:
//
//	refs/heads/<name>       branch record (JSON)
//	refs/tags/<name>        tag object hash
//	logs/refs/heads/<name>  reflog
//
// Every write goes through a <ref>.lock file that is renamed into place, so
// concurrent writers in different processes are serialized per ref.
type FileRefStore struct {
	dir string
	now func() time.Time
}

// NewFileRefStore returns a FileRefStore rooted at dir.
func NewFileRefStore(dir string) *FileRefStore {
	return &FileRefStore{dir: dir, now: time.Now}
}

func (s *FileRefStore) refPath(ref string) string {
	return filepath.Join(s.dir, filepath.FromSlash(ref))
}

func (s *FileRefStore) GetBranch(ctx context.Context, name string) (*Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readRefFile(s.refPath(branchRef(name)))
	if err != nil {
		return nil, fmt.Errorf("get branch %q: %w", name, err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeBranch(name, data)
}

func (s *FileRefStore) ListBranches(ctx context.Context) ([]*Branch, error) {
	names, err := s.listRefs(ctx, headsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	out := make([]*Branch, 0, len(names))
	for _, name := range names {
		b, err := s.GetBranch(ctx, name)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *FileRefStore) CreateBranch(ctx context.Context, b *Branch, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeBranch(b)
	if err != nil {
		return err
	}
	ref := branchRef(b.Name)
	_, err = s.writeRef(ref, data, func(old []byte) error {
		if old != nil {
			return fmt.Errorf("branch %q: %w", b.Name, ErrRefExists)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.logMove(ref, "", b.Head, reason)
}

func (s *FileRefStore) UpdateBranch(ctx context.Context, b *Branch, reason string, expectedOld ...object.Hash) error {
	want, check, err := expectedHead("update branch", b.Name, expectedOld)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeBranch(b)
	if err != nil {
		return err
	}

	ref := branchRef(b.Name)
	var oldHead object.Hash
	_, err = s.writeRef(ref, data, func(old []byte) error {
		if old == nil {
			return vcserr.NotFound("update branch", b.Name)
		}
		cur, err := decodeBranch(b.Name, old)
		if err != nil {
			return err
		}
		oldHead = cur.Head
		if check && cur.Head != want {
			return casMismatch(b.Name, want, cur.Head)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.logMove(ref, oldHead, b.Head, reason)
}

func (s *FileRefStore) DeleteBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref := branchRef(name)
	refPath := s.refPath(ref)
	lockPath := refPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("delete branch %q: mkdir: %w", name, err)
	}
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("delete branch %q: lock: %w", name, err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	old, err := readRefFile(refPath)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	if old == nil {
		return vcserr.NotFound("delete branch", name)
	}
	cur, err := decodeBranch(name, old)
	if err != nil {
		return err
	}
	if err := os.Remove(refPath); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return s.logMove(ref, cur.Head, "", "delete")
}

func (s *FileRefStore) GetTag(ctx context.Context, name string) (object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := readRefFile(s.refPath(tagsPrefix + name))
	if err != nil {
		return "", fmt.Errorf("get tag %q: %w", name, err)
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

func (s *FileRefStore) ListTags(ctx context.Context) (map[string]object.Hash, error) {
	names, err := s.listRefs(ctx, tagsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make(map[string]object.Hash, len(names))
	for _, name := range names {
		h, err := s.GetTag(ctx, name)
		if err != nil {
			return nil, err
		}
		if h != "" {
			out[name] = h
		}
	}
	return out, nil
}

func (s *FileRefStore) CreateTag(ctx context.Context, name string, h object.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.writeRef(tagsPrefix+name, []byte(string(h)+"\n"), func(old []byte) error {
		if old != nil {
			return fmt.Errorf("tag %q: %w", name, ErrRefExists)
		}
		return nil
	})
	return err
}

func (s *FileRefStore) ReadReflog(ctx context.Context, ref string, limit int) ([]ReflogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readReflog(s.dir, ref, limit)
}

func (s *FileRefStore) logMove(ref string, oldHash, newHash object.Hash, reason string) error {
	if err := appendReflog(s.dir, ref, oldHash, newHash, s.now(), reason); err != nil {
		return &RefUpdateReflogError{Ref: ref, OldHash: oldHash, NewHash: newHash, Err: err}
	}
	return nil
}

// writeRef replaces the file of ref with data using lockfile + rename.
// check sees the current content (nil when the ref does not exist) while
// the lock is held and may refuse the write.
func (s *FileRefStore) writeRef(ref string, data []byte, check func(old []byte) error) ([]byte, error) {
	refPath := s.refPath(ref)

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("update ref %q: mkdir: %w", ref, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("update ref %q: lock: %w", ref, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	old, err := readRefFile(refPath)
	if err != nil {
		return nil, fmt.Errorf("update ref %q: read old value: %w", ref, err)
	}
	if check != nil {
		if err := check(old); err != nil {
			return old, err
		}
	}

	if _, err := lockFile.Write(data); err != nil {
		return old, fmt.Errorf("update ref %q: write: %w", ref, err)
	}
	if err := lockFile.Sync(); err != nil {
		return old, fmt.Errorf("update ref %q: sync: %w", ref, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return old, fmt.Errorf("update ref %q: close: %w", ref, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return old, fmt.Errorf("update ref %q: rename: %w", ref, err)
	}
	cleanupLock = false
	return old, nil
}

// listRefs returns the names below prefix ("refs/heads/" or "refs/tags/"),
// sorted.
func (s *FileRefStore) listRefs(ctx context.Context, prefix string) ([]string, error) {
	root := s.refPath(prefix)
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefFile(refPath string) ([]byte, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func encodeBranch(b *Branch) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, vcserr.Validation("encode branch", "%s: %v", b.Name, err)
	}
	return append(data, '\n'), nil
}

func decodeBranch(name string, data []byte) (*Branch, error) {
	var b Branch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, vcserr.Integrity("read branch", name, "%v", err)
	}
	b.Name = name
	return &b, nil
}
