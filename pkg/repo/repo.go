package repo

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/cadvc/pkg/config"
	"github.com/odvcencio/cadvc/pkg/diff"
	"github.com/odvcencio/cadvc/pkg/document"
	"github.com/odvcencio/cadvc/pkg/naming"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/resolve"
)

// ObjectStore is the content-addressed storage a Repo works against.
// *object.Store satisfies it.
type ObjectStore interface {
	StoreBlob(ctx context.Context, d *object.ObjectData) (object.Hash, error)
	GetBlob(ctx context.Context, h object.Hash) (*object.ObjectData, error)
	StoreTree(ctx context.Context, t *object.Tree) (object.Hash, error)
	GetTree(ctx context.Context, h object.Hash) (*object.Tree, error)
	StoreCommit(ctx context.Context, c *object.Commit) (object.Hash, error)
	GetCommit(ctx context.Context, h object.Hash) (*object.Commit, error)
	StoreTag(ctx context.Context, t *object.Tag) (object.Hash, error)
	GetTag(ctx context.Context, h object.Hash) (*object.Tag, error)
	Has(ctx context.Context, h object.Hash) (bool, error)
	Stats(ctx context.Context) (*object.StorageStats, error)
	ReachableSet(ctx context.Context, roots []object.Hash) (map[object.Hash]struct{}, error)
	Close() error
}

// Repo is a version-controlled set of CAD documents: an object store, the
// adapter documents are read through, and the branch and tag refs.
type Repo struct {
	RootDir string // directory holding .cadvc; empty for in-memory repos
	Dir     string // .cadvc directory

	Store   ObjectStore
	Refs    RefStore
	Adapter document.Adapter
	Config  *config.Config

	validator naming.Validator
	resolver  *resolve.Resolver
	differ    *diff.Differ
	signer    CommitSigner
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	workers   int

	traversal *traversalState
}

// Option configures a Repo.
type Option func(*Repo)

// WithRefStore sets where branches and tags live. Defaults to a
// MemoryRefStore.
func WithRefStore(rs RefStore) Option { return func(r *Repo) { r.Refs = rs } }

// WithAdapter sets the document adapter. Defaults to an empty
// document.Registry.
func WithAdapter(a document.Adapter) Option { return func(r *Repo) { r.Adapter = a } }

// WithConfig sets the repository configuration. Defaults to config.Default().
func WithConfig(cfg *config.Config) Option { return func(r *Repo) { r.Config = cfg } }

// WithValidator sets the branch and tag name validator.
func WithValidator(v naming.Validator) Option { return func(r *Repo) { r.validator = v } }

// WithResolver overrides the resolver built from the merge configuration.
func WithResolver(res *resolve.Resolver) Option { return func(r *Repo) { r.resolver = res } }

// WithSigner signs every commit the repo creates.
func WithSigner(s CommitSigner) Option { return func(r *Repo) { r.signer = s } }

// WithLogger sets the logger. Optional, uses slog.Default() if nil.
func WithLogger(l *slog.Logger) Option { return func(r *Repo) { r.logger = l } }

// WithClock replaces time.Now for commit, branch and tag timestamps.
func WithClock(now func() time.Time) Option { return func(r *Repo) { r.now = now } }

// WithIDGenerator replaces the UUID source for commit IDs.
func WithIDGenerator(fn func() string) Option { return func(r *Repo) { r.newID = fn } }

// New assembles a Repo around store.
func New(store ObjectStore, opts ...Option) (*Repo, error) {
	if store == nil {
		return nil, fmt.Errorf("new repo: nil object store")
	}
	r := &Repo{Store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.Config == nil {
		r.Config = config.Default()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.Refs == nil {
		r.Refs = NewMemoryRefStore()
	}
	if r.Adapter == nil {
		r.Adapter = document.NewRegistry()
	}
	if r.validator == nil {
		r.validator = naming.RefValidator{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.resolver == nil {
		ropts := append(r.Config.ResolverOptions(), resolve.WithLogger(r.logger))
		res, err := resolve.New(ropts...)
		if err != nil {
			return nil, fmt.Errorf("new repo: %w", err)
		}
		r.resolver = res
	}
	r.differ = diff.New()
	if r.Config.Merge.Tolerance > 0 {
		r.differ.Tolerance = r.Config.Merge.Tolerance
	}

	r.workers = r.Config.Commit.Workers
	if r.workers <= 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}

	ts, err := newTraversalState(r.Config.Cache.CommitCacheSize)
	if err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}
	r.traversal = ts
	return r, nil
}

// NewMemory returns a Repo over an in-memory object store and ref store.
func NewMemory(opts ...Option) (*Repo, error) {
	return New(object.NewMemoryStore(), opts...)
}

// Logger returns the repository logger.
func (r *Repo) Logger() *slog.Logger { return r.logger }

// Resolver returns the conflict resolver merges use.
func (r *Repo) Resolver() *resolve.Resolver { return r.resolver }

// Close releases the object store.
func (r *Repo) Close() error {
	return r.Store.Close()
}

// Diff compares the trees of two commits. An empty from compares against
// the empty tree.
func (r *Repo) Diff(ctx context.Context, from, to object.Hash) (*diff.CommitDiff, error) {
	return r.differ.DiffCommits(ctx, r.Store, from, to)
}
