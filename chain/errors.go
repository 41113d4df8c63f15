package chain

import (
	"fmt"
	"strings"
)

// Kind classifies a validation failure.
type Kind int

const (
	HashMismatch Kind = iota + 1
	InvalidGenesisStructure
	IndexMismatch
	LinkBroken
	InsufficientDifficulty
	InheritedInvalidity
)

var kindNames = map[Kind]string{
	HashMismatch:            "HashMismatch",
	InvalidGenesisStructure: "InvalidGenesisStructure",
	IndexMismatch:           "IndexMismatch",
	LinkBroken:              "LinkBroken",
	InsufficientDifficulty:  "InsufficientDifficulty",
	InheritedInvalidity:     "InheritedInvalidity",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name so API consumers never see the enum value.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if strings.EqualFold(name, string(text)) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown validation error kind %q", text)
}

// ValidationError describes why a block is invalid. Explanation is written
// for a learner; Technical names the field values involved. Both are always
// populated.
type ValidationError struct {
	Kind        Kind   `json:"kind"`
	BlockID     string `json:"blockId"`
	Explanation string `json:"explanation"`
	Technical   string `json:"technical"`
}

func (e *ValidationError) Error() string {
	return e.Technical
}

func newHashMismatch(b *Block, recomputed string) *ValidationError {
	return &ValidationError{
		Kind:        HashMismatch,
		BlockID:     b.ID,
		Explanation: "This block's contents were changed after it was mined, so its fingerprint no longer matches what is inside it.",
		Technical:   fmt.Sprintf("hash integrity check failed: stored %s, recomputed %s", b.Hash, recomputed),
	}
}

func newInvalidGenesis(b *Block) *ValidationError {
	parent := "null"
	if b.ParentID != nil {
		parent = *b.ParentID
	}
	return &ValidationError{
		Kind:        InvalidGenesisStructure,
		BlockID:     b.ID,
		Explanation: "The first block of a chain must not point to any earlier block.",
		Technical:   fmt.Sprintf("invalid genesis: previousHash=%q (want %q), parentId=%s (want null)", b.PreviousHash, GenesisPreviousHash, parent),
	}
}

func newIndexMismatch(b, prev *Block) *ValidationError {
	return &ValidationError{
		Kind:        IndexMismatch,
		BlockID:     b.ID,
		Explanation: "Each block must sit exactly one position after the block it builds on.",
		Technical:   fmt.Sprintf("invalid index: expected %d, got %d", prev.Index+1, b.Index),
	}
}

func newLinkBroken(b, prev *Block) *ValidationError {
	return &ValidationError{
		Kind:        LinkBroken,
		BlockID:     b.ID,
		Explanation: "This block remembers a different fingerprint for the block before it. The earlier block was changed, which breaks the link.",
		Technical:   fmt.Sprintf("previous hash mismatch: block.previousHash=%s, parent %s hash=%s", b.PreviousHash, prev.ID, prev.Hash),
	}
}

func newInsufficientDifficulty(b *Block, difficulty int) *ValidationError {
	return &ValidationError{
		Kind:        InsufficientDifficulty,
		BlockID:     b.ID,
		Explanation: fmt.Sprintf("Not enough work was done: the fingerprint must start with %d zeros.", difficulty),
		Technical:   fmt.Sprintf("insufficient difficulty: hash %s has %d leading zeros, need %d", b.Hash, LeadingZeros(b.Hash), difficulty),
	}
}

func newInheritedInvalidity(b *Block, firstInvalid string) *ValidationError {
	return &ValidationError{
		Kind:        InheritedInvalidity,
		BlockID:     b.ID,
		Explanation: "An earlier block in this chain is invalid, so everything built on top of it is invalid too.",
		Technical:   fmt.Sprintf("previous block in chain is invalid: first invalid block %s", firstInvalid),
	}
}
