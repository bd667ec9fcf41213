package object

import "context"

// StorageStats summarizes the contents of a store. Reachable and
// Unreachable are only filled in by callers that know the ref roots (see
// repo.Stats); the core never deletes unreachable objects.
type StorageStats struct {
	Objects           map[ObjectType]int `json:"objects"`
	Total             int                `json:"total"`
	Bytes             uint64             `json:"bytes"`
	CompressedObjects int                `json:"compressed_objects"`
	Reachable         int                `json:"reachable"`
	Unreachable       int                `json:"unreachable"`
}

// Stats walks the backend and counts objects by type.
func (s *Store) Stats(ctx context.Context) (*StorageStats, error) {
	st := &StorageStats{Objects: make(map[ObjectType]int)}
	err := s.Walk(ctx, func(ref ObjectRef) error {
		st.Objects[ref.Type]++
		st.Total++
		st.Bytes += ref.Size
		if ref.Compressed {
			st.CompressedObjects++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
