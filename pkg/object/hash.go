package object

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash is a 64-character lowercase hex-encoded SHA-256 digest.
type Hash string

// HashBytes computes the raw SHA-256 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// ValidHash reports whether h is exactly 64 lowercase hex characters.
func ValidHash(h Hash) bool {
	if len(h) != 64 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Short returns the first 8 characters of h for display.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	switch t {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return true
	}
	return false
}

// ObjectRef describes a stored object: its address, the length of its
// canonical payload, its type and whether the backend holds it compressed.
type ObjectRef struct {
	SHA256     Hash       `json:"sha256"`
	Size       uint64     `json:"size"`
	Type       ObjectType `json:"object_type"`
	Compressed bool       `json:"compressed"`
}
