package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisHash = "854198ab62cb72e9107c57e665a41708912574bf6f35297aa2466a0a97c891f9"

func TestDigestKnownVectors(t *testing.T) {
	tx := Transaction{ID: "tx1", From: "Alice", To: "Bob", Amount: 10, Timestamp: 1738771260000}

	tests := []struct {
		name     string
		index    int64
		ts       int64
		txs      []Transaction
		nonce    uint64
		prevHash string
		want     string
	}{
		{"genesis", 0, GenesisTimestamp, nil, 0, "0", genesisHash},
		{"genesis empty slice", 0, GenesisTimestamp, []Transaction{}, 0, "0", genesisHash},
		{"one tx nonce 0", 1, 1738771300000, []Transaction{tx}, 0, genesisHash,
			"df6865bf7f7b6becf7f8281aea3127eb9c3d71689449afdd29c91ebacf70bdd7"},
		{"one tx winning nonce", 1, 1738771300000, []Transaction{tx}, 24, genesisHash,
			"0dd9c2f8e1374946053bed8991920cb7065e488c7561fc10ed4b7c37006de629"},
		{"fractional amount", 1, 5, []Transaction{{ID: "a", From: "x", To: "y", Amount: 1.5, Timestamp: 7}}, 3, "ab",
			"36fe6d42c4b358ed4d590c529698925574c387486149c0aa025314d6a8c90320"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Digest(tt.index, tt.ts, tt.txs, tt.nonce, tt.prevHash)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, DigestSize)
		})
	}
}

func TestCanonicalTransactions(t *testing.T) {
	assert.Equal(t, "[]", string(CanonicalTransactions(nil)))

	txs := []Transaction{
		{ID: "tx1", From: "Alice", To: "Bob", Amount: 10, Timestamp: 1738771260000},
		{ID: "tx2", From: "<a&b>", To: "Zoë", Amount: 0.25, Timestamp: 2},
	}
	want := `[{"id":"tx1","from":"Alice","to":"Bob","amount":10,"timestamp":1738771260000},` +
		`{"id":"tx2","from":"<a&b>","to":"Zoë","amount":0.25,"timestamp":2}]`
	assert.Equal(t, want, string(CanonicalTransactions(txs)))
}

func TestCanonicalTransactionsLineSeparators(t *testing.T) {
	txs := []Transaction{{ID: "t", From: "x\u2028y", To: "p\u2029q", Amount: 1, Timestamp: 1}}
	want := "[{\"id\":\"t\",\"from\":\"x\u2028y\",\"to\":\"p\u2029q\",\"amount\":1,\"timestamp\":1}]"
	assert.Equal(t, want, string(CanonicalTransactions(txs)))

	// Backslash text that spells an escape stays escaped, as do control
	// characters.
	txs = []Transaction{{ID: "t", From: `a\u2028b`, To: "tab\there", Amount: 1, Timestamp: 1}}
	want = `[{"id":"t","from":"a\\u2028b","to":"tab\there","amount":1,"timestamp":1}]`
	assert.Equal(t, want, string(CanonicalTransactions(txs)))
}

func TestDigestSensitivity(t *testing.T) {
	a := testTx("a", 1)
	b := testTx("b", 2)
	base := Digest(1, 100, []Transaction{a, b}, 7, "prev")

	require.Equal(t, base, Digest(1, 100, []Transaction{a, b}, 7, "prev"), "digest must be deterministic")

	variants := map[string]string{
		"index":     Digest(2, 100, []Transaction{a, b}, 7, "prev"),
		"timestamp": Digest(1, 101, []Transaction{a, b}, 7, "prev"),
		"order":     Digest(1, 100, []Transaction{b, a}, 7, "prev"),
		"amount":    Digest(1, 100, []Transaction{testTx("a", 1.01), b}, 7, "prev"),
		"nonce":     Digest(1, 100, []Transaction{a, b}, 8, "prev"),
		"prevHash":  Digest(1, 100, []Transaction{a, b}, 7, "prev0"),
	}
	for field, got := range variants {
		assert.NotEqual(t, base, got, "changing %s must change the digest", field)
	}
}

func TestHasherMatchesDigest(t *testing.T) {
	txs := []Transaction{testTx("a", 3)}
	h := NewHasher(4, 999, txs, "abc")
	for nonce := uint64(0); nonce < 50; nonce++ {
		require.Equal(t, Digest(4, 999, txs, nonce, "abc"), h.Sum(nonce))
	}
}

func TestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		hash       string
		difficulty int
		want       bool
	}{
		{"00ab", 2, true},
		{"000b", 2, true},
		{"0abc", 2, false},
		{"abcd", 0, true},
		{"abcd", -1, true},
		{"00", 3, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MeetsDifficulty(tt.hash, tt.difficulty), "%s @ %d", tt.hash, tt.difficulty)
	}
	assert.Equal(t, 3, LeadingZeros("000f"))
	assert.Equal(t, 0, LeadingZeros("f000"))
}
