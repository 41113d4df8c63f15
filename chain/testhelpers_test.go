package chain

import "testing"

// mustMine builds a block on parent and searches nonces until it meets
// difficulty.
func mustMine(t *testing.T, id string, parent *Block, txs []Transaction, difficulty int) *Block {
	t.Helper()

	b := &Block{
		ID:           id,
		ParentID:     StringPtr(parent.ID),
		Index:        parent.Index + 1,
		Timestamp:    parent.Timestamp + 1000,
		Transactions: txs,
		PreviousHash: parent.Hash,
		Difficulty:   difficulty,
	}
	h := NewHasher(b.Index, b.Timestamp, b.Transactions, b.PreviousHash)
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		if hash := h.Sum(nonce); MeetsDifficulty(hash, difficulty) {
			b.Nonce = nonce
			b.Hash = hash
			return b
		}
	}
	t.Fatalf("no nonce found for block %s at difficulty %d", id, difficulty)
	return nil
}

func testTx(id string, amount float64) Transaction {
	return Transaction{ID: id, From: "Alice", To: "Bob", Amount: amount, Timestamp: 1738771260000}
}

// tamper replaces b's transactions and recomputes only b's hash.
func tamper(b *Block, txs []Transaction) {
	b.Transactions = txs
	b.Hash = BlockDigest(b)
}

func mapOf(bs ...*Block) BlockMap {
	m := make(BlockMap, len(bs))
	for _, b := range bs {
		m[b.ID] = b
	}
	return m
}
