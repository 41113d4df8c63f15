package chain

const (
	// GenesisID is the identifier given to freshly created genesis blocks.
	// Validation never relies on it; see IsGenesis.
	GenesisID = "genesis"

	// GenesisTimestamp is fixed so every fresh chain has the same genesis hash.
	GenesisTimestamp int64 = 1738771200000

	// GenesisPreviousHash is the sentinel previous hash of the root block.
	GenesisPreviousHash = "0"
)

// NewGenesis returns a fresh genesis block with its hash computed.
func NewGenesis() *Block {
	g := &Block{
		ID:           GenesisID,
		ParentID:     nil,
		Index:        0,
		Timestamp:    GenesisTimestamp,
		Transactions: []Transaction{},
		Nonce:        0,
		PreviousHash: GenesisPreviousHash,
		Difficulty:   0,
	}
	g.Hash = BlockDigest(g)
	return g
}

// IsGenesis reports whether b is structurally a root block: index zero and
// no parent. The identifier is deliberately not consulted.
func IsGenesis(b *Block) bool {
	return b != nil && b.Index == 0 && b.ParentID == nil
}
