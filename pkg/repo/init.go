package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/cadvc/pkg/config"
	"github.com/odvcencio/cadvc/pkg/object"
)

// DirName is the repository directory created inside the working root.
const DirName = ".cadvc"

// Init creates a new repository at path: the .cadvc/ directory with
// objects/, refs/heads/, refs/tags/, logs/ and the config file. cfg nil
// means config.Default(). Returns an error if a .cadvc/ directory already
// exists.
func Init(path string, cfg *config.Config, opts ...Option) (*Repo, error) {
	dir := filepath.Join(path, DirName)

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "refs", "heads"),
		filepath.Join(dir, "refs", "tags"),
		filepath.Join(dir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}
	if err := config.Save(dir, cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return openAt(path, dir, cfg, opts)
}

// Open searches upward from path for a .cadvc/ directory and opens the
// repository with its stored configuration.
func Open(path string, opts ...Option) (*Repo, error) {
	root, err := FindRoot(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	dir := filepath.Join(root, DirName)
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return openAt(root, dir, cfg, opts)
}

// FindRoot returns the nearest directory at or above path that holds a
// .cadvc/ directory.
func FindRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}

	cur := abs
	for {
		info, err := os.Stat(filepath.Join(cur, DirName))
		if err == nil && info.IsDir() {
			return cur, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("not a cadvc repository (or any parent up to /)")
		}
		cur = parent
	}
}

func openAt(root, dir string, cfg *config.Config, opts []Option) (*Repo, error) {
	store, err := OpenStore(dir, cfg)
	if err != nil {
		return nil, err
	}
	all := append([]Option{WithConfig(cfg), WithRefStore(NewFileRefStore(dir))}, opts...)
	r, err := New(store, all...)
	if err != nil {
		store.Close()
		return nil, err
	}
	r.RootDir = root
	r.Dir = dir
	return r, nil
}

// OpenStore builds the object store the storage and cache sections of cfg
// describe, rooted at dir.
func OpenStore(dir string, cfg *config.Config) (*object.Store, error) {
	var backend object.Backend
	switch cfg.Storage.Backend {
	case config.BackendFile, "":
		backend = object.NewFileBackend(dir)
	case config.BackendSQLite:
		b, err := object.OpenSQLiteBackend(filepath.Join(dir, "objects.db"))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		backend = b
	case config.BackendMemory:
		backend = object.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", cfg.Storage.Backend)
	}

	level, err := object.ParseCompressionLevel(cfg.Storage.CompressLevel)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	store, err := object.NewStore(backend,
		object.WithCompression(cfg.Storage.CompressMin, level),
		object.WithCache(cfg.Cache.MaxCost, cfg.Cache.NumCounters),
	)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}
