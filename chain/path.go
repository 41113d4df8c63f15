package chain

// DifficultyRule picks the difficulty a block is validated against.
type DifficultyRule func(b *Block) int

// PerBlockDifficulty validates every block against the difficulty it was
// mined at. Changing the session difficulty never retroactively invalidates
// history under this rule.
func PerBlockDifficulty(b *Block) int {
	return b.Difficulty
}

// FixedDifficulty validates every block against the same difficulty.
func FixedDifficulty(n int) DifficultyRule {
	return func(*Block) int { return n }
}

// PathResult summarizes validation of a root-to-tip path.
type PathResult struct {
	Valid          bool                        `json:"isValid"`
	Errors         map[string]*ValidationError `json:"errors"`
	FirstInvalidID string                      `json:"firstInvalidBlockId,omitempty"`
	Length         int                         `json:"length"`
}

// Path returns the blocks from the root to tipID by walking parent links.
// The walk stops at the first identifier missing from blocks, so a dangling
// parent just yields a shorter path. A repeated identifier also ends the walk.
func Path(blocks BlockMap, tipID string) []*Block {
	var rev []*Block
	seen := make(map[string]struct{})

	for id := tipID; id != ""; {
		b, ok := blocks[id]
		if !ok || b == nil {
			break
		}
		if _, dup := seen[id]; dup {
			break
		}
		seen[id] = struct{}{}
		rev = append(rev, b)
		id = b.Parent()
	}

	path := make([]*Block, len(rev))
	for i, b := range rev {
		path[len(rev)-1-i] = b
	}
	return path
}

// PathLength is len(Path(blocks, tipID)) without building the slice.
func PathLength(blocks BlockMap, tipID string) int {
	n := 0
	seen := make(map[string]struct{})
	for id := tipID; id != ""; {
		b, ok := blocks[id]
		if !ok || b == nil {
			break
		}
		if _, dup := seen[id]; dup {
			break
		}
		seen[id] = struct{}{}
		n++
		id = b.Parent()
	}
	return n
}

// ValidatePath validates the path ending at tipID from the root forward.
// The first block that fails records its own error; every block after it
// records InheritedInvalidity without being validated itself.
func ValidatePath(blocks BlockMap, tipID string, rule DifficultyRule) PathResult {
	if rule == nil {
		rule = PerBlockDifficulty
	}

	path := Path(blocks, tipID)
	res := PathResult{
		Errors: make(map[string]*ValidationError),
		Length: len(path),
	}

	var prev *Block
	for _, b := range path {
		if res.FirstInvalidID != "" {
			res.Errors[b.ID] = newInheritedInvalidity(b, res.FirstInvalidID)
			continue
		}
		if out := ValidateBlock(b, prev, rule(b)); !out.Valid {
			res.Errors[b.ID] = out.Err
			res.FirstInvalidID = b.ID
		}
		prev = b
	}

	res.Valid = len(res.Errors) == 0
	return res
}
