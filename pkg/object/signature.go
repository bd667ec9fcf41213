package object

// MetadataSignature is the commit metadata key holding a detached signature.
// Metadata is outside the hash payload, so signing never changes the hash.
const MetadataSignature = "signature"

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit: the same payload its hash is computed over.
func CommitSigningPayload(c *Commit) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return c.HashPayload()
}

// CommitSignature returns the signature stored in the commit metadata.
func CommitSignature(c *Commit) string {
	if c == nil {
		return ""
	}
	s, _ := c.Metadata[MetadataSignature].AsString()
	return s
}
