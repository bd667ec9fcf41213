package object

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkStoreBlobMemory benchmarks storing distinct blobs in memory.
func BenchmarkStoreBlobMemory(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore()

	objs := make([]*ObjectData, b.N)
	for i := range objs {
		objs[i] = sampleObject(fmt.Sprintf("Box%d", i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.StoreBlob(ctx, objs[i]); err != nil {
			b.Fatalf("StoreBlob: %v", err)
		}
	}
}

// BenchmarkStoreBlobFile benchmarks storing distinct blobs on disk.
func BenchmarkStoreBlobFile(b *testing.B) {
	ctx := context.Background()
	s, _ := NewStore(NewFileBackend(b.TempDir()))

	objs := make([]*ObjectData, b.N)
	for i := range objs {
		objs[i] = sampleObject(fmt.Sprintf("Box%d", i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.StoreBlob(ctx, objs[i]); err != nil {
			b.Fatalf("StoreBlob: %v", err)
		}
	}
}

// BenchmarkGetBlob benchmarks reading back a previously stored blob.
func BenchmarkGetBlob(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore()
	h, err := s.StoreBlob(ctx, sampleObject("Box"))
	if err != nil {
		b.Fatalf("StoreBlob: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.GetBlob(ctx, h); err != nil {
			b.Fatalf("GetBlob: %v", err)
		}
	}
}

// BenchmarkCommitHash benchmarks canonical commit hashing.
func BenchmarkCommitHash(b *testing.B) {
	c := &Commit{Tree: HashBytes([]byte("t")), Author: "a", Message: "m"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.CalculateHash(); err != nil {
			b.Fatal(err)
		}
	}
}
