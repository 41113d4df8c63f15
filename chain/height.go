package chain

// BlocksByHeight groups blocks by index for tree rendering. Slot i holds
// every block at index i ordered by timestamp, then identifier. Heights
// with no blocks are empty slices.
func BlocksByHeight(blocks BlockMap) [][]*Block {
	if len(blocks) == 0 {
		return nil
	}

	var maxHeight int64
	for _, b := range blocks {
		if b.Index > maxHeight {
			maxHeight = b.Index
		}
	}

	out := make([][]*Block, maxHeight+1)
	for _, b := range blocks {
		if b.Index < 0 {
			continue
		}
		out[b.Index] = append(out[b.Index], b)
	}
	for i := range out {
		if out[i] == nil {
			out[i] = []*Block{}
		}
		sortBlocks(out[i])
	}
	return out
}
