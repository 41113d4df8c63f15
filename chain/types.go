package chain

// Transaction is a value transfer between two free-form labels. Once a
// transaction is placed in a block it is only ever replaced, never edited in
// place, except by the tamper operation.
type Transaction struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
}

// Block is a node in the block DAG. ID is an internal identifier and is
// distinct from Hash; the block map is keyed by ID.
//
// Hash is a cache of BlockDigest(b) and is never trusted by validation.
// IsAttacker marks blocks produced by the attack simulator and is not part
// of the hash input.
type Block struct {
	ID           string        `json:"id"`
	ParentID     *string       `json:"parentId"`
	Index        int64         `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	Nonce        uint64        `json:"nonce"`
	PreviousHash string        `json:"previousHash"`
	Difficulty   int           `json:"difficulty"`
	Hash         string        `json:"hash"`
	IsAttacker   bool          `json:"isAttacker,omitempty"`
}

// Parent returns the parent identifier, or "" for a root block.
func (b *Block) Parent() string {
	if b.ParentID == nil {
		return ""
	}
	return *b.ParentID
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	if b.ParentID != nil {
		p := *b.ParentID
		c.ParentID = &p
	}
	if b.Transactions != nil {
		c.Transactions = make([]Transaction, len(b.Transactions))
		copy(c.Transactions, b.Transactions)
	}
	return &c
}

// BlockMap holds every known block keyed by identifier.
type BlockMap map[string]*Block

// Clone deep-copies the map so the result can be handed to concurrent readers.
func (m BlockMap) Clone() BlockMap {
	out := make(BlockMap, len(m))
	for id, b := range m {
		out[id] = b.Clone()
	}
	return out
}

// StringPtr is a helper for building ParentID values.
func StringPtr(s string) *string {
	return &s
}
