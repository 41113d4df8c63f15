package chain

// Outcome is the result of validating a single block.
type Outcome struct {
	Valid bool
	Err   *ValidationError
}

func ok() Outcome { return Outcome{Valid: true} }

func fail(err *ValidationError) Outcome { return Outcome{Err: err} }

// ValidateBlock checks b against its predecessor. Checks run in a fixed
// order and the first failure is reported:
//
//  1. stored hash equals the recomputed digest (every block, genesis included)
//  2. genesis structure; a structural genesis that passes is valid
//  3. index follows prev
//  4. previousHash equals prev's hash
//  5. hash meets difficulty
//
// When prev is nil for a non-genesis block (its parent is unknown) the
// index and link checks are skipped.
func ValidateBlock(b, prev *Block, difficulty int) Outcome {
	if b == nil {
		return fail(&ValidationError{
			Kind:        HashMismatch,
			Explanation: "The block is missing.",
			Technical:   "nil block",
		})
	}

	if recomputed := BlockDigest(b); recomputed != b.Hash {
		return fail(newHashMismatch(b, recomputed))
	}

	if IsGenesis(b) {
		if b.PreviousHash != GenesisPreviousHash {
			return fail(newInvalidGenesis(b))
		}
		return ok()
	}

	if prev != nil {
		if b.Index != prev.Index+1 {
			return fail(newIndexMismatch(b, prev))
		}
		if b.PreviousHash != prev.Hash {
			return fail(newLinkBroken(b, prev))
		}
	}

	if !MeetsDifficulty(b.Hash, difficulty) {
		return fail(newInsufficientDifficulty(b, difficulty))
	}

	return ok()
}
