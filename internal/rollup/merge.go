package rollup

import (
	"sort"

	"taskboard/internal/model"
)

// MergeOptions unions option vocabularies by id. The first definition of
// an id wins; later boards cannot override its label or color. The result
// is ordered by position, keeping first-seen order among equal positions.
func MergeOptions(sets ...[]model.Option) []model.Option {
	seen := map[string]bool{}
	out := []model.Option{}
	for _, set := range sets {
		for _, o := range set {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
