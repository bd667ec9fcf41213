package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

var (
	// ErrRefConflict is returned when a compare-and-swap finds a head other
	// than the expected one.
	ErrRefConflict = errors.New("ref compare-and-swap mismatch")
	// ErrRefExists is returned when creating a ref that already exists.
	ErrRefExists = errors.New("ref already exists")
)

const (
	headsPrefix = "refs/heads/"
	tagsPrefix  = "refs/tags/"
)

// Branch is a named mutable pointer to a commit. Only Head and UpdatedAt
// change after creation.
type Branch struct {
	Name      string                  `json:"name"`
	Head      object.Hash             `json:"head"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Protected bool                    `json:"protected"`
	Metadata  map[string]object.Value `json:"metadata,omitempty"`
}

func (b *Branch) clone() *Branch {
	if b == nil {
		return nil
	}
	out := *b
	out.Metadata = object.CloneValues(b.Metadata)
	return &out
}

// ReflogEntry records one move of a branch.
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Timestamp int64
	Reason    string
}

// RefStore persists branches and tag names. Implementations serialize
// writers per ref; UpdateBranch only succeeds when the stored head still
// equals expectedOld, when one is given.
type RefStore interface {
	// GetBranch returns nil without error when the branch does not exist.
	GetBranch(ctx context.Context, name string) (*Branch, error)
	// ListBranches returns all branches sorted by name.
	ListBranches(ctx context.Context) ([]*Branch, error)
	CreateBranch(ctx context.Context, b *Branch, reason string) error
	UpdateBranch(ctx context.Context, b *Branch, reason string, expectedOld ...object.Hash) error
	DeleteBranch(ctx context.Context, name string) error

	// GetTag returns the tag object hash, or "" when the tag does not exist.
	GetTag(ctx context.Context, name string) (object.Hash, error)
	ListTags(ctx context.Context) (map[string]object.Hash, error)
	CreateTag(ctx context.Context, name string, h object.Hash) error

	// ReadReflog returns the moves of ref, newest first. ref may be a branch
	// name or a full "refs/heads/..." name. limit <= 0 returns everything.
	ReadReflog(ctx context.Context, ref string, limit int) ([]ReflogEntry, error)
}

func branchRef(name string) string { return headsPrefix + name }

func reflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return branchRef(ref)
}

func expectedHead(op, name string, expectedOld []object.Hash) (object.Hash, bool, error) {
	switch len(expectedOld) {
	case 0:
		return "", false, nil
	case 1:
		return expectedOld[0], true, nil
	}
	return "", false, vcserr.Validation(op, "branch %q: expected at most one old hash", name)
}

func casMismatch(name string, want, got object.Hash) error {
	return fmt.Errorf("branch %q: %w (expected %s, found %s)", name, ErrRefConflict, want, got)
}

// MemoryRefStore keeps refs and reflogs in memory.
type MemoryRefStore struct {
	mu       sync.Mutex
	branches map[string]*Branch
	tags     map[string]object.Hash
	logs     map[string][]ReflogEntry
	now      func() time.Time
}

// NewMemoryRefStore returns an empty MemoryRefStore.
func NewMemoryRefStore() *MemoryRefStore {
	return &MemoryRefStore{
		branches: make(map[string]*Branch),
		tags:     make(map[string]object.Hash),
		logs:     make(map[string][]ReflogEntry),
		now:      time.Now,
	}
}

func (m *MemoryRefStore) GetBranch(ctx context.Context, name string) (*Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[name].clone(), nil
}

func (m *MemoryRefStore) ListBranches(ctx context.Context) ([]*Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]*Branch, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, b.clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRefStore) CreateBranch(ctx context.Context, b *Branch, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[b.Name]; ok {
		return fmt.Errorf("branch %q: %w", b.Name, ErrRefExists)
	}
	m.branches[b.Name] = b.clone()
	m.appendLog(branchRef(b.Name), "", b.Head, reason)
	return nil
}

func (m *MemoryRefStore) UpdateBranch(ctx context.Context, b *Branch, reason string, expectedOld ...object.Hash) error {
	want, check, err := expectedHead("update branch", b.Name, expectedOld)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.branches[b.Name]
	if !ok {
		return vcserr.NotFound("update branch", b.Name)
	}
	if check && cur.Head != want {
		return casMismatch(b.Name, want, cur.Head)
	}
	m.branches[b.Name] = b.clone()
	m.appendLog(branchRef(b.Name), cur.Head, b.Head, reason)
	return nil
}

func (m *MemoryRefStore) DeleteBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.branches[name]
	if !ok {
		return vcserr.NotFound("delete branch", name)
	}
	delete(m.branches, name)
	m.appendLog(branchRef(name), cur.Head, "", "delete")
	return nil
}

func (m *MemoryRefStore) GetTag(ctx context.Context, name string) (object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags[name], nil
}

func (m *MemoryRefStore) ListTags(ctx context.Context) (map[string]object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]object.Hash, len(m.tags))
	for k, v := range m.tags {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryRefStore) CreateTag(ctx context.Context, name string, h object.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[name]; ok {
		return fmt.Errorf("tag %q: %w", name, ErrRefExists)
	}
	m.tags[name] = h
	return nil
}

func (m *MemoryRefStore) ReadReflog(ctx context.Context, ref string, limit int) ([]ReflogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = reflogRefName(ref)
	m.mu.Lock()
	log := m.logs[ref]
	out := make([]ReflogEntry, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
	}
	m.mu.Unlock()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// appendLog must be called with m.mu held.
func (m *MemoryRefStore) appendLog(ref string, oldHash, newHash object.Hash, reason string) {
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}
	if oldHash == "" {
		oldHash = zeroHash
	}
	if newHash == "" {
		newHash = zeroHash
	}
	m.logs[ref] = append(m.logs[ref], ReflogEntry{
		Ref:       ref,
		OldHash:   oldHash,
		NewHash:   newHash,
		Timestamp: m.now().Unix(),
		Reason:    reason,
	})
}
