// Package document defines how the version-control core obtains object
// snapshots from CAD documents it does not own.
package document

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

const (
	// MetadataTypeID and MetadataObjectName identify the synthetic object
	// that stands in for a document without a live handle.
	MetadataTypeID     = "App::DocumentMetadata"
	MetadataObjectName = "__document__"
)

// Handle is a live connection to an open CAD document.
type Handle interface {
	TakeSnapshot(ctx context.Context) (*Snapshot, error)
}

// Document is one versionable document.
type Document interface {
	ID() string
	Metadata() map[string]object.Value
	// Objects returns the document's objects in snapshot order.
	Objects(ctx context.Context) ([]*object.ObjectData, error)
}

// Adapter opens documents by ID. Unknown IDs yield a vcserr.KindNotFound
// error.
type Adapter interface {
	Open(ctx context.Context, id string) (Document, error)
}

// LiveDocument reads its objects from a Handle.
type LiveDocument struct {
	id       string
	metadata map[string]object.Value
	handle   Handle
}

func (d *LiveDocument) ID() string                        { return d.id }
func (d *LiveDocument) Metadata() map[string]object.Value { return object.CloneValues(d.metadata) }

func (d *LiveDocument) Objects(ctx context.Context) ([]*object.ObjectData, error) {
	snap, err := d.handle.TakeSnapshot(ctx)
	if err != nil {
		return nil, vcserr.Wrap("take snapshot", d.id, err)
	}
	if snap == nil {
		return nil, vcserr.Validation("take snapshot", "document %s returned no snapshot", d.id)
	}

	out := make([]*object.ObjectData, 0, len(snap.Objects))
	seen := make(map[string]struct{}, len(snap.Objects))
	for i, so := range snap.Objects {
		if so.Name == "" {
			return nil, vcserr.Validation("take snapshot", "document %s: object %d has no name", d.id, i)
		}
		if _, dup := seen[so.Name]; dup {
			return nil, vcserr.Validation("take snapshot", "document %s: duplicate object name %q", d.id, so.Name)
		}
		seen[so.Name] = struct{}{}
		out = append(out, so.ObjectData())
	}
	return out, nil
}

// MetadataDocument has no live handle. It versions its registry metadata
// as a single synthetic object.
type MetadataDocument struct {
	id       string
	metadata map[string]object.Value
}

func (d *MetadataDocument) ID() string                        { return d.id }
func (d *MetadataDocument) Metadata() map[string]object.Value { return object.CloneValues(d.metadata) }

func (d *MetadataDocument) Objects(ctx context.Context) ([]*object.ObjectData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	label := d.id
	if name, ok := d.metadata["name"].AsString(); ok && name != "" {
		label = name
	}
	props := object.CloneValues(d.metadata)
	if props == nil {
		props = map[string]object.Value{}
	}
	props["document_id"] = object.Str(d.id)
	return []*object.ObjectData{{
		TypeID:     MetadataTypeID,
		Name:       MetadataObjectName,
		Label:      label,
		Properties: props,
	}}, nil
}

// Registry is an in-process Adapter: document metadata keyed by ID plus an
// optional live handle per document.
type Registry struct {
	mu        sync.RWMutex
	documents map[string]map[string]object.Value
	handles   map[string]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		documents: make(map[string]map[string]object.Value),
		handles:   make(map[string]Handle),
	}
}

// Register adds or replaces a document. handle may be nil.
func (r *Registry) Register(id string, metadata map[string]object.Value, handle Handle) error {
	if id == "" {
		return vcserr.Validation("register document", "empty document id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[id] = object.CloneValues(metadata)
	if handle != nil {
		r.handles[id] = handle
	} else {
		delete(r.handles, id)
	}
	return nil
}

// Unregister removes a document and its handle.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.documents, id)
	delete(r.handles, id)
}

// IDs lists registered documents in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.documents))
	for id := range r.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Open returns the live variant when a handle is registered and the
// metadata-only variant otherwise.
func (r *Registry) Open(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	meta, ok := r.documents[id]
	handle := r.handles[id]
	r.mu.RUnlock()
	if !ok {
		return nil, vcserr.NotFound("open document", id)
	}
	if handle != nil {
		return &LiveDocument{id: id, metadata: meta, handle: handle}, nil
	}
	return &MetadataDocument{id: id, metadata: meta}, nil
}

// String implements fmt.Stringer for debugging output.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("document.Registry{documents: %d, handles: %d}", len(r.documents), len(r.handles))
}
