package object

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// Store is a content-addressed object store over a Backend. Identical
// content always maps to the same hash, and storing an object that already
// exists performs no backend write.
//
// Get methods return nil without error when the hash is absent. Errors are
// reserved for backend failures (vcserr.KindStoreIO) and for stored content
// that does not match its address or requested type (vcserr.KindIntegrity).
type Store struct {
	backend Backend

	codec       *codec
	compressMin int

	cache *ristretto.Cache
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	compressMin   int
	compressLevel zstd.EncoderLevel
	cacheMaxCost  int64
	cacheCounters int64
}

// WithCompression stores payloads of at least minSize bytes as zstd frames
// when that makes them smaller. minSize <= 0 disables compression.
func WithCompression(minSize int, level zstd.EncoderLevel) StoreOption {
	return func(o *storeOptions) {
		o.compressMin = minSize
		o.compressLevel = level
	}
}

// WithCache keeps up to maxCost bytes of decoded payloads in memory.
// maxCost <= 0 disables the cache.
func WithCache(maxCost, numCounters int64) StoreOption {
	return func(o *storeOptions) {
		o.cacheMaxCost = maxCost
		o.cacheCounters = numCounters
	}
}

const (
	defaultCacheCounters = 1e5
	defaultBufferItems   = 64
)

// NewStore wraps backend.
func NewStore(backend Backend, opts ...StoreOption) (*Store, error) {
	o := storeOptions{compressLevel: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(&o)
	}

	// The decoder is always needed: objects written by a compressing store
	// stay readable after compression is turned off.
	c, err := newCodec(o.compressLevel)
	if err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}
	s := &Store{backend: backend, codec: c, compressMin: o.compressMin}
	if o.cacheMaxCost > 0 {
		counters := o.cacheCounters
		if counters <= 0 {
			counters = defaultCacheCounters
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: counters,
			MaxCost:     o.cacheMaxCost,
			BufferItems: defaultBufferItems,
		})
		if err != nil {
			return nil, fmt.Errorf("new store: cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// NewMemoryStore returns a Store over a fresh MemoryBackend.
func NewMemoryStore() *Store {
	s, _ := NewStore(NewMemoryBackend())
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Close releases the backend, the codec and the cache.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	s.codec.close()
	return s.backend.Close()
}

type cachedPayload struct {
	objType ObjectType
	data    []byte
}

// put writes payload under h unless it is already present.
func (s *Store) put(ctx context.Context, op string, objType ObjectType, h Hash, payload []byte) (Hash, error) {
	exists, err := s.backend.Has(ctx, h)
	if err != nil {
		return "", vcserr.StoreIO(op, string(h), err)
	}
	if exists {
		return h, nil
	}

	rec := Record{
		Ref:     ObjectRef{SHA256: h, Size: uint64(len(payload)), Type: objType},
		Payload: payload,
	}
	if s.compressMin > 0 && len(payload) >= s.compressMin {
		if frame := s.codec.compress(payload); len(frame) < len(payload) {
			rec.Payload = frame
			rec.Ref.Compressed = true
		}
	}
	if _, err := s.backend.Put(ctx, rec); err != nil {
		return "", vcserr.StoreIO(op, string(h), err)
	}
	return h, nil
}

// read returns the decoded payload of h, or nil if h is absent.
func (s *Store) read(ctx context.Context, op string, h Hash, want ObjectType) ([]byte, error) {
	if !ValidHash(h) {
		return nil, nil
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(string(h)); ok {
			if cp, ok := v.(cachedPayload); ok && cp.objType == want {
				return cp.data, nil
			}
		}
	}

	rec, err := s.backend.Get(ctx, h)
	if err != nil {
		return nil, vcserr.StoreIO(op, string(h), err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Ref.Type != want {
		return nil, vcserr.Integrity(op, string(h), "type mismatch: got %q, want %q", rec.Ref.Type, want)
	}

	data := rec.Payload
	if rec.Ref.Compressed {
		data, err = s.codec.decompress(rec.Payload)
		if err != nil {
			return nil, vcserr.Integrity(op, string(h), "decompress: %v", err)
		}
	}
	if uint64(len(data)) != rec.Ref.Size {
		return nil, vcserr.Integrity(op, string(h), "size mismatch: header=%d actual=%d", rec.Ref.Size, len(data))
	}

	if s.cache != nil {
		s.cache.Set(string(h), cachedPayload{objType: want, data: data}, int64(len(data)))
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Typed operations
// ---------------------------------------------------------------------------

// StoreBlob serializes and stores object data.
func (s *Store) StoreBlob(ctx context.Context, d *ObjectData) (Hash, error) {
	data, err := MarshalBlob(d)
	if err != nil {
		return "", vcserr.Validation("store blob", "%v", err)
	}
	return s.put(ctx, "store blob", TypeBlob, HashBytes(data), data)
}

// GetBlob reads and verifies object data.
func (s *Store) GetBlob(ctx context.Context, h Hash) (*ObjectData, error) {
	data, err := s.read(ctx, "get blob", h, TypeBlob)
	if err != nil || data == nil {
		return nil, err
	}
	if got := HashBytes(data); got != h {
		return nil, vcserr.Integrity("get blob", string(h), "content hashes to %s", got)
	}
	d, err := UnmarshalBlob(data)
	if err != nil {
		return nil, vcserr.Integrity("get blob", string(h), "%v", err)
	}
	return d, nil
}

// StoreTree serializes and stores a tree.
func (s *Store) StoreTree(ctx context.Context, t *Tree) (Hash, error) {
	data, err := MarshalTree(t)
	if err != nil {
		return "", vcserr.Validation("store tree", "%v", err)
	}
	return s.put(ctx, "store tree", TypeTree, HashBytes(data), data)
}

// GetTree reads and verifies a tree.
func (s *Store) GetTree(ctx context.Context, h Hash) (*Tree, error) {
	data, err := s.read(ctx, "get tree", h, TypeTree)
	if err != nil || data == nil {
		return nil, err
	}
	if got := HashBytes(data); got != h {
		return nil, vcserr.Integrity("get tree", string(h), "content hashes to %s", got)
	}
	t, err := UnmarshalTree(data)
	if err != nil {
		return nil, vcserr.Integrity("get tree", string(h), "%v", err)
	}
	return t, nil
}

// StoreCommit stores a commit under its hash, sealing it first when the
// hash is unset. A preset hash that disagrees with the fields is rejected.
func (s *Store) StoreCommit(ctx context.Context, c *Commit) (Hash, error) {
	if c == nil {
		return "", vcserr.Validation("store commit", "nil commit")
	}
	want, err := c.CalculateHash()
	if err != nil {
		return "", vcserr.Validation("store commit", "%v", err)
	}
	if c.Hash == "" {
		c.Hash = want
	} else if c.Hash != want {
		return "", vcserr.Validation("store commit", "hash field %s does not match content hash %s", c.Hash, want)
	}
	data, err := MarshalCommit(c)
	if err != nil {
		return "", vcserr.Validation("store commit", "%v", err)
	}
	return s.put(ctx, "store commit", TypeCommit, c.Hash, data)
}

// GetCommit reads a commit as stored. It does not recompute the hash; that
// audit is the caller's (see repo.ValidateCommit).
func (s *Store) GetCommit(ctx context.Context, h Hash) (*Commit, error) {
	data, err := s.read(ctx, "get commit", h, TypeCommit)
	if err != nil || data == nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, vcserr.Integrity("get commit", string(h), "%v", err)
	}
	return c, nil
}

// StoreTag stores a tag object.
func (s *Store) StoreTag(ctx context.Context, t *Tag) (Hash, error) {
	h, err := t.Hash()
	if err != nil {
		return "", vcserr.Validation("store tag", "%v", err)
	}
	data, err := MarshalTag(t)
	if err != nil {
		return "", vcserr.Validation("store tag", "%v", err)
	}
	return s.put(ctx, "store tag", TypeTag, h, data)
}

// GetTag reads and verifies a tag object.
func (s *Store) GetTag(ctx context.Context, h Hash) (*Tag, error) {
	data, err := s.read(ctx, "get tag", h, TypeTag)
	if err != nil || data == nil {
		return nil, err
	}
	t, err := UnmarshalTag(data)
	if err != nil {
		return nil, vcserr.Integrity("get tag", string(h), "%v", err)
	}
	if got, err := t.Hash(); err != nil || got != h {
		return nil, vcserr.Integrity("get tag", string(h), "content hashes to %s", got)
	}
	return t, nil
}

// Has reports whether the store contains h.
func (s *Store) Has(ctx context.Context, h Hash) (bool, error) {
	if !ValidHash(h) {
		return false, nil
	}
	ok, err := s.backend.Has(ctx, h)
	if err != nil {
		return false, vcserr.StoreIO("has", string(h), err)
	}
	return ok, nil
}

// Stat returns the reference of h, or nil if absent.
func (s *Store) Stat(ctx context.Context, h Hash) (*ObjectRef, error) {
	if !ValidHash(h) {
		return nil, nil
	}
	rec, err := s.backend.Get(ctx, h)
	if err != nil {
		return nil, vcserr.StoreIO("stat", string(h), err)
	}
	if rec == nil {
		return nil, nil
	}
	ref := rec.Ref
	return &ref, nil
}

// Walk calls fn for every stored object.
func (s *Store) Walk(ctx context.Context, fn func(ObjectRef) error) error {
	err := s.backend.Walk(ctx, fn)
	if err == nil {
		return nil
	}
	var classified *vcserr.Error
	if errors.As(err, &classified) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return vcserr.StoreIO("walk", "", err)
}
