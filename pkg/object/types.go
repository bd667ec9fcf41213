package object

import (
	"fmt"
	"sort"
	"time"
)

// TreeModeFile is the Git-compatible mode string of every tree entry.
const TreeModeFile = "100644"

// ObjectData is the snapshot of one CAD document object. It is the content
// of a blob and is never mutated after it has been hashed.
type ObjectData struct {
	TypeID      string            `json:"type_id"`
	Name        string            `json:"name"`
	Label       string            `json:"label"`
	Properties  map[string]Value  `json:"properties,omitempty"`
	Placement   map[string]Value  `json:"placement,omitempty"`
	ShapeData   map[string]Value  `json:"shape_data,omitempty"`
	Expressions map[string]string `json:"expressions,omitempty"`
	Visibility  bool              `json:"visibility"`
}

// Clone returns a deep copy of d.
func (d *ObjectData) Clone() *ObjectData {
	if d == nil {
		return nil
	}
	out := *d
	out.Properties = CloneValues(d.Properties)
	out.Placement = CloneValues(d.Placement)
	out.ShapeData = CloneValues(d.ShapeData)
	if d.Expressions != nil {
		out.Expressions = make(map[string]string, len(d.Expressions))
		for k, v := range d.Expressions {
			out.Expressions[k] = v
		}
	}
	return &out
}

// Property returns the named property.
func (d *ObjectData) Property(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.Properties[name]
	return v, ok
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string     `json:"name"`
	Hash Hash       `json:"hash"`
	Mode string     `json:"mode"`
	Type ObjectType `json:"object_type"`
}

// Tree is the set of named entries of one document state. Entries are kept
// sorted by name and names are unique.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// NewTree builds a tree from entries in any order. A later entry replaces an
// earlier one with the same name.
func NewTree(entries ...TreeEntry) *Tree {
	t := &Tree{}
	for _, e := range entries {
		t.Add(e)
	}
	return t
}

// Add inserts or replaces the entry with e.Name, filling in the default
// mode and type.
func (t *Tree) Add(e TreeEntry) {
	if e.Mode == "" {
		e.Mode = TreeModeFile
	}
	if e.Type == "" {
		e.Type = TypeBlob
	}
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= e.Name })
	if i < len(t.Entries) && t.Entries[i].Name == e.Name {
		t.Entries[i] = e
		return
	}
	t.Entries = append(t.Entries, TreeEntry{})
	copy(t.Entries[i+1:], t.Entries[i:])
	t.Entries[i] = e
}

// Lookup returns the entry called name.
func (t *Tree) Lookup(name string) (TreeEntry, bool) {
	if t == nil {
		return TreeEntry{}, false
	}
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Sorted returns a copy of the entries sorted by name. Entries appended
// directly to the slice, bypassing Add, are handled too.
func (t *Tree) Sorted() []TreeEntry {
	if t == nil {
		return []TreeEntry{}
	}
	out := make([]TreeEntry, len(t.Entries))
	copy(out, t.Entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Hash returns the content address of the tree.
func (t *Tree) Hash() (Hash, error) {
	data, err := MarshalTree(t)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// Commit is an immutable snapshot pointer. Hash covers tree, sorted parents,
// author, timestamp and message only; ID, committer and metadata are carried
// in the stored payload but do not affect the address.
type Commit struct {
	ID        string           `json:"id"`
	Tree      Hash             `json:"tree"`
	Parents   []Hash           `json:"parents"`
	Author    string           `json:"author"`
	Committer string           `json:"committer,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Message   string           `json:"message"`
	Metadata  map[string]Value `json:"metadata,omitempty"`
	Hash      Hash             `json:"hash"`
}

type commitHashPayload struct {
	Tree      Hash   `json:"tree"`
	Parents   []Hash `json:"parents"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// HashPayload returns the canonical bytes the commit hash is computed over.
// This is also the payload a commit signature covers.
func (c *Commit) HashPayload() ([]byte, error) {
	parents := make([]Hash, len(c.Parents))
	copy(parents, c.Parents)
	sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })

	return CanonicalJSON(commitHashPayload{
		Tree:      c.Tree,
		Parents:   parents,
		Author:    c.Author,
		Timestamp: FormatTimestamp(c.Timestamp),
		Message:   c.Message,
	})
}

// CalculateHash recomputes the commit address from its fields.
func (c *Commit) CalculateHash() (Hash, error) {
	payload, err := c.HashPayload()
	if err != nil {
		return "", fmt.Errorf("commit hash: %w", err)
	}
	return HashBytes(payload), nil
}

// Seal computes and stores the commit hash.
func (c *Commit) Seal() error {
	h, err := c.CalculateHash()
	if err != nil {
		return err
	}
	c.Hash = h
	return nil
}

// IsMerge reports whether the commit has two or more parents.
func (c *Commit) IsMerge() bool { return len(c.Parents) >= 2 }

// FirstParent returns the first parent, if any.
func (c *Commit) FirstParent() (Hash, bool) {
	if len(c.Parents) == 0 {
		return "", false
	}
	return c.Parents[0], true
}

// Tag is an immutable named pointer to a commit.
type Tag struct {
	Name      string           `json:"name"`
	Target    Hash             `json:"target"`
	Tagger    string           `json:"tagger"`
	Timestamp time.Time        `json:"timestamp"`
	Message   string           `json:"message,omitempty"`
	Metadata  map[string]Value `json:"metadata,omitempty"`
}

type tagHashPayload struct {
	Name      string `json:"name"`
	Target    Hash   `json:"target"`
	Tagger    string `json:"tagger"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Hash returns the content address of the tag.
func (t *Tag) Hash() (Hash, error) {
	payload, err := CanonicalJSON(tagHashPayload{
		Name:      t.Name,
		Target:    t.Target,
		Tagger:    t.Tagger,
		Timestamp: FormatTimestamp(t.Timestamp),
		Message:   t.Message,
	})
	if err != nil {
		return "", fmt.Errorf("tag hash: %w", err)
	}
	return HashBytes(payload), nil
}

// FormatTimestamp is the ISO-8601 spelling used in hash payloads: UTC,
// RFC 3339 with nanoseconds and trailing zeros trimmed.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
