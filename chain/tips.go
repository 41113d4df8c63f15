package chain

import (
	"slices"
	"sort"
)

// Tips lists the identifiers of blocks without children, in the order they
// became tips. The order is the tie-break for LongestChainTip.
type Tips []string

// Append records childID as a new tip built on parentID. The parent stops
// being a tip; any sibling tips are left alone, so a second child of the
// same parent produces a fork with both children listed.
func (t *Tips) Append(parentID, childID string) {
	out := (*t)[:0]
	for _, id := range *t {
		if id != parentID && id != childID {
			out = append(out, id)
		}
	}
	*t = append(out, childID)
}

// Contains reports whether id is a tip.
func (t Tips) Contains(id string) bool {
	return slices.Contains(t, id)
}

// Clone returns a copy of the tip list.
func (t Tips) Clone() Tips {
	return slices.Clone(t)
}

// ComputeTips derives the tip set from scratch. Ordering is by block
// timestamp and then identifier, which approximates insertion order for
// state that has lost it.
func ComputeTips(blocks BlockMap) Tips {
	hasChild := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if p := b.Parent(); p != "" {
			hasChild[p] = true
		}
	}

	var leaves []*Block
	for id, b := range blocks {
		if !hasChild[id] {
			leaves = append(leaves, b)
		}
	}
	sortBlocks(leaves)

	tips := make(Tips, 0, len(leaves))
	for _, b := range leaves {
		tips = append(tips, b.ID)
	}
	return tips
}

// LongestChainTip returns the tip with the longest root-to-tip path.
// Only a strictly longer path displaces the current best, so among equal
// lengths the tip listed first wins. It returns "" when tips is empty.
func LongestChainTip(blocks BlockMap, tips Tips) string {
	best := ""
	bestLen := -1
	for _, id := range tips {
		if n := PathLength(blocks, id); n > bestLen {
			best, bestLen = id, n
		}
	}
	return best
}

func sortBlocks(bs []*Block) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Timestamp != bs[j].Timestamp {
			return bs[i].Timestamp < bs[j].Timestamp
		}
		return bs[i].ID < bs[j].ID
	})
}
