package pow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocknetprivacy/blocksim/chain"
)

const genesisHash = "854198ab62cb72e9107c57e665a41708912574bf6f35297aa2466a0a97c891f9"

func block1Template() Template {
	return Template{
		Index:     1,
		Timestamp: 1738771300000,
		Transactions: []chain.Transaction{
			{ID: "tx1", From: "Alice", To: "Bob", Amount: 10, Timestamp: 1738771260000},
		},
		PreviousHash: genesisHash,
		Difficulty:   1,
	}
}

func TestSearchFindsFirstNonce(t *testing.T) {
	res, err := Search(context.Background(), block1Template())
	require.NoError(t, err)
	assert.Equal(t, uint64(24), res.Nonce)
	assert.Equal(t, "0dd9c2f8e1374946053bed8991920cb7065e488c7561fc10ed4b7c37006de629", res.Hash)
	assert.Equal(t, uint64(25), res.Attempts)
}

func TestSearchDifficultyTwo(t *testing.T) {
	tmpl := Template{
		Index:        2,
		Timestamp:    1738771400000,
		PreviousHash: "0dd9c2f8e1374946053bed8991920cb7065e488c7561fc10ed4b7c37006de629",
		Difficulty:   2,
	}
	res, err := Search(context.Background(), tmpl)
	require.NoError(t, err)
	assert.Equal(t, uint64(184), res.Nonce)
	assert.Equal(t, "00fee4970c523732a084665de42be7a417f7b7ed5918c32a7a91a00c9cb11b09", res.Hash)
}

func TestSearchZeroDifficultyReturnsNonceZero(t *testing.T) {
	tmpl := block1Template()
	tmpl.Difficulty = 0
	res, err := Search(context.Background(), tmpl)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Nonce)
}

func TestSearchRejectsNegativeDifficulty(t *testing.T) {
	tmpl := block1Template()
	tmpl.Difficulty = -1
	_, err := Search(context.Background(), tmpl)
	assert.ErrorIs(t, err, ErrInvalidDifficulty)
}

func TestSearchReportsProgress(t *testing.T) {
	tmpl := Template{Index: 2, Timestamp: 1738771400000, PreviousHash: "x", Difficulty: 2}

	var reports []Progress
	res, err := Search(context.Background(), tmpl,
		WithInterval(10),
		WithProgress(func(p Progress) { reports = append(reports, p) }),
	)
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	for i, p := range reports {
		assert.Equal(t, uint64(i*10), p.Nonce)
		assert.Len(t, p.Hash, chain.DigestSize)
		assert.Less(t, p.Nonce, res.Nonce+1)
	}
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tmpl := block1Template()
	tmpl.Difficulty = 64 // never satisfiable in practice

	done := make(chan error, 1)
	go func() {
		_, err := Search(ctx, tmpl)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not observe cancellation")
	}
}

func TestSearchCancelledBeforeSolutionReturnsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Difficulty 1 is solved at nonce 24, inside the first progress interval.
	res, err := Search(ctx, block1Template(), WithProgress(func(p Progress) {
		if p.Nonce == 0 {
			cancel()
		}
	}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Hash)
	assert.Zero(t, res.Nonce)
}

func TestSearchAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Search(ctx, block1Template())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Hash)
}

func TestSearchMaxNonce(t *testing.T) {
	tmpl := block1Template()
	tmpl.Difficulty = 64
	_, err := Search(context.Background(), tmpl, WithMaxNonce(50))
	assert.ErrorIs(t, err, ErrNonceExhausted)
}

func TestSolveProducesValidBlock(t *testing.T) {
	g := chain.NewGenesis()
	tmpl := block1Template()
	tmpl.PreviousHash = g.Hash

	b, _, err := Solve(context.Background(), tmpl)
	require.NoError(t, err)
	b.ID = "b1"
	b.ParentID = chain.StringPtr(g.ID)

	out := chain.ValidateBlock(b, g, tmpl.Difficulty)
	assert.True(t, out.Valid, "%v", out.Err)
}
