package object

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ReachableSet returns all object hashes reachable from roots by following
// tag targets, commit trees and parents, and tree entries. Missing objects
// are not included and not followed.
func (s *Store) ReachableSet(ctx context.Context, roots []Hash) (map[Hash]struct{}, error) {
	roots = uniqueNormalizedHashes(roots)
	out := make(map[Hash]struct{}, len(roots))
	if len(roots) == 0 {
		return out, nil
	}

	stack := make([]Hash, 0, len(roots))
	stack = append(stack, roots...)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := out[h]; ok {
			continue
		}
		ref, err := s.Stat(ctx, h)
		if err != nil {
			return nil, err
		}
		if ref == nil {
			continue
		}
		out[h] = struct{}{}

		refs, err := s.referencedHashes(ctx, *ref)
		if err != nil {
			return nil, fmt.Errorf("reachable set %s (%s): %w", h, ref.Type, err)
		}
		stack = append(stack, refs...)
	}

	return out, nil
}

func (s *Store) referencedHashes(ctx context.Context, ref ObjectRef) ([]Hash, error) {
	switch ref.Type {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := s.GetTag(ctx, ref.SHA256)
		if err != nil || tag == nil {
			return nil, err
		}
		return []Hash{tag.Target}, nil
	case TypeCommit:
		commit, err := s.GetCommit(ctx, ref.SHA256)
		if err != nil || commit == nil {
			return nil, err
		}
		refs := make([]Hash, 0, 1+len(commit.Parents))
		refs = append(refs, commit.Tree)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case TypeTree:
		tree, err := s.GetTree(ctx, ref.SHA256)
		if err != nil || tree == nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", ref.Type)
	}
}

func uniqueNormalizedHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		h = Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
