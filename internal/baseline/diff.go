package baseline

import (
	"encoding/json"
	"sort"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// Diff compares a candidate baseline document against the active one at
// field granularity. It is a pure function: no store access, no side
// effects, deterministic entry order (sorted by path).
func Diff(candidate, active *Document) *domain.BaselineDiff {
	d := &domain.BaselineDiff{
		CandidateHash: candidate.Hash(),
		ActiveHash:    active.Hash(),
	}

	seen := make(map[string]struct{})
	for _, path := range candidate.paths() {
		seen[path] = struct{}{}
		after := candidate.lookup(path)
		before := active.lookup(path)

		switch {
		case before == nil:
			d.Entries = append(d.Entries, domain.DiffEntry{
				Path: path, Kind: domain.DiffAdded, After: after,
			})
		case !specsEqual(before, after):
			d.Entries = append(d.Entries, domain.DiffEntry{
				Path: path, Kind: domain.DiffChanged, Before: before, After: after,
			})
		}
	}

	for _, path := range active.paths() {
		if _, ok := seen[path]; ok {
			continue
		}
		d.Entries = append(d.Entries, domain.DiffEntry{
			Path: path, Kind: domain.DiffRemoved, Before: active.lookup(path),
		})
	}

	sort.Slice(d.Entries, func(i, j int) bool {
		return d.Entries[i].Path < d.Entries[j].Path
	})
	return d
}

// specsEqual compares payloads structurally so formatting and key order do
// not register as changes.
func specsEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return domain.Fingerprint(av) == domain.Fingerprint(bv)
}
