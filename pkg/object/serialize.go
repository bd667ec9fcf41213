package object

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes object data to canonical JSON. The blob hash is the
// SHA-256 of these bytes.
func MarshalBlob(d *ObjectData) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("marshal blob: nil object data")
	}
	data, err := CanonicalJSON(d)
	if err != nil {
		return nil, fmt.Errorf("marshal blob %q: %w", d.Name, err)
	}
	return data, nil
}

// UnmarshalBlob deserializes object data.
func UnmarshalBlob(data []byte) (*ObjectData, error) {
	var d ObjectData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal blob: %w", err)
	}
	return &d, nil
}

// BlobHash returns the content address of d without storing it.
func BlobHash(d *ObjectData) (Hash, error) {
	data, err := MarshalBlob(d)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// MarshalTree serializes the tree as the canonical JSON array of its entries
// sorted by name. Empty modes and types are normalized first so a tree built
// by hand hashes the same as one built with Add.
func MarshalTree(t *Tree) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("marshal tree: nil tree")
	}
	entries := t.Sorted()
	for i := range entries {
		if entries[i].Mode == "" {
			entries[i].Mode = TreeModeFile
		}
		if entries[i].Type == "" {
			entries[i].Type = TypeBlob
		}
		if i > 0 && entries[i].Name == entries[i-1].Name {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", entries[i].Name)
		}
	}
	data, err := CanonicalJSON(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}
	return data, nil
}

// UnmarshalTree parses a tree from its serialized form.
func UnmarshalTree(data []byte) (*Tree, error) {
	var entries []TreeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal tree: %w", err)
	}
	return &Tree{Entries: entries}, nil
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit serializes every commit field, hash included.
func MarshalCommit(c *Commit) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("marshal commit: nil commit")
	}
	data, err := CanonicalJSON(c)
	if err != nil {
		return nil, fmt.Errorf("marshal commit: %w", err)
	}
	return data, nil
}

// UnmarshalCommit parses a commit. The timestamp is normalized to UTC.
func UnmarshalCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	c.Timestamp = c.Timestamp.UTC()
	return &c, nil
}

// ---------------------------------------------------------------------------
// Tag
// ---------------------------------------------------------------------------

// MarshalTag serializes every tag field.
func MarshalTag(t *Tag) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("marshal tag: nil tag")
	}
	data, err := CanonicalJSON(t)
	if err != nil {
		return nil, fmt.Errorf("marshal tag: %w", err)
	}
	return data, nil
}

// UnmarshalTag parses a tag.
func UnmarshalTag(data []byte) (*Tag, error) {
	var t Tag
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal tag: %w", err)
	}
	t.Timestamp = t.Timestamp.UTC()
	return &t, nil
}
