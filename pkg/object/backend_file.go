package object

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FileBackend is a content-addressed object directory with a 2-character
// fan-out layout: objects/ab/cdef0123...
//
// Each file holds the header "type size flag\0" followed by the payload,
// where size is the uncompressed payload length and flag is 1 when the
// payload is a zstd frame.
type FileBackend struct {
	root string
}

// NewFileBackend creates a FileBackend rooted at the given directory. The
// objects/ subdirectory is created lazily on first write.
func NewFileBackend(root string) *FileBackend {
	return &FileBackend{root: root}
}

// objectPath returns the filesystem path for a given hash.
func (b *FileBackend) objectPath(h Hash) string {
	return filepath.Join(b.root, "objects", string(h[:2]), string(h[2:]))
}

func (b *FileBackend) Has(ctx context.Context, h Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidHash(h) {
		return false, nil
	}
	_, err := os.Stat(b.objectPath(h))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("object stat %s: %w", h, err)
}

// Put stores a record. Writes are atomic: data is written to a temp file
// and then renamed into place.
func (b *FileBackend) Put(ctx context.Context, rec Record) (bool, error) {
	h := rec.Ref.SHA256
	if !ValidHash(h) {
		return false, fmt.Errorf("object write: invalid hash %q", h)
	}

	// Fast path: already exists.
	exists, err := b.Has(ctx, h)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	flag := 0
	if rec.Ref.Compressed {
		flag = 1
	}
	header := fmt.Sprintf("%s %d %d\x00", rec.Ref.Type, rec.Ref.Size, flag)
	raw := append([]byte(header), rec.Payload...)

	dir := filepath.Join(b.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("object write close: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmpName)
		return false, err
	}

	if err := os.Rename(tmpName, b.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("object write rename: %w", err)
	}
	return true, nil
}

func (b *FileBackend) Get(ctx context.Context, h Hash) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidHash(h) {
		return nil, nil
	}
	raw, err := os.ReadFile(b.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("object read %s: %w", h, err)
	}

	ref, payload, err := parseObjectFile(h, raw)
	if err != nil {
		return nil, err
	}
	return &Record{Ref: ref, Payload: payload}, nil
}

// parseObjectFile splits "type size flag\0payload".
func parseObjectFile(h Hash, raw []byte) (ObjectRef, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return ObjectRef{}, nil, fmt.Errorf("object read %s: invalid format (no NUL)", h)
	}
	header := string(raw[:nulIdx])
	payload := raw[nulIdx+1:]

	parts := strings.Split(header, " ")
	if len(parts) != 3 {
		return ObjectRef{}, nil, fmt.Errorf("object read %s: invalid header %q", h, header)
	}
	objType := ObjectType(parts[0])
	if !objType.Valid() {
		return ObjectRef{}, nil, fmt.Errorf("object read %s: unknown type %q", h, parts[0])
	}
	size, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ObjectRef{}, nil, fmt.Errorf("object read %s: invalid size %q: %w", h, parts[1], err)
	}
	compressed := parts[2] == "1"
	if !compressed && uint64(len(payload)) != size {
		return ObjectRef{}, nil, fmt.Errorf("object read %s: length mismatch (header=%d, actual=%d)", h, size, len(payload))
	}
	return ObjectRef{SHA256: h, Size: size, Type: objType, Compressed: compressed}, payload, nil
}

func (b *FileBackend) Walk(ctx context.Context, fn func(ObjectRef) error) error {
	root := filepath.Join(b.root, "objects")
	var hashes []Hash
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		h := Hash(filepath.Base(filepath.Dir(path)) + d.Name())
		if ValidHash(h) {
			hashes = append(hashes, h)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("object walk: %w", err)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	for _, h := range hashes {
		rec, err := b.Get(ctx, h)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if err := fn(rec.Ref); err != nil {
			return err
		}
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
