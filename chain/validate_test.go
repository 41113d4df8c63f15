package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenesis(t *testing.T) {
	g := NewGenesis()
	assert.Equal(t, genesisHash, g.Hash)
	assert.True(t, IsGenesis(g))
	assert.Equal(t, "0", g.PreviousHash)
	assert.Nil(t, g.ParentID)
}

func TestValidateGenesisIgnoresDifficulty(t *testing.T) {
	g := NewGenesis()
	require.False(t, MeetsDifficulty(g.Hash, 4))

	for _, d := range []int{0, 1, 4, 64} {
		out := ValidateBlock(g, nil, d)
		assert.True(t, out.Valid, "difficulty %d", d)
		assert.Nil(t, out.Err)
	}
}

func TestValidateGenesisStructure(t *testing.T) {
	g := NewGenesis()
	g.PreviousHash = "1"
	g.Hash = BlockDigest(g)

	out := ValidateBlock(g, nil, 0)
	require.False(t, out.Valid)
	assert.Equal(t, InvalidGenesisStructure, out.Err.Kind)
	assert.NotEmpty(t, out.Err.Explanation)
	assert.NotEmpty(t, out.Err.Technical)
}

func TestValidateGenesisDetectedStructurally(t *testing.T) {
	// A root block with another identifier is still a genesis block.
	g := NewGenesis()
	g.ID = "root-1"
	assert.True(t, ValidateBlock(g, nil, 3).Valid)

	// The canonical identifier with a parent is not.
	b := NewGenesis()
	b.ParentID = StringPtr("x")
	assert.False(t, IsGenesis(b))
}

func TestValidateHashMismatchWins(t *testing.T) {
	g := NewGenesis()
	b := mustMine(t, "b1", g, []Transaction{testTx("t", 1)}, 1)
	b.Index = 7 // also an index error, but hash is checked first

	out := ValidateBlock(b, g, 1)
	require.False(t, out.Valid)
	assert.Equal(t, HashMismatch, out.Err.Kind)
	assert.Equal(t, "b1", out.Err.BlockID)

	gt := NewGenesis()
	gt.Nonce = 1
	out = ValidateBlock(gt, nil, 0)
	require.False(t, out.Valid)
	assert.Equal(t, HashMismatch, out.Err.Kind)
}

func TestValidateIndexMismatch(t *testing.T) {
	g := NewGenesis()
	b := mustMine(t, "b1", g, nil, 0)
	b.Index = 5
	b.Hash = BlockDigest(b)

	out := ValidateBlock(b, g, 0)
	require.False(t, out.Valid)
	assert.Equal(t, IndexMismatch, out.Err.Kind)
	assert.Contains(t, out.Err.Technical, "expected 1, got 5")
}

func TestValidateLinkBroken(t *testing.T) {
	g := NewGenesis()
	b := mustMine(t, "b1", g, nil, 0)
	b.PreviousHash = "deadbeef"
	b.Hash = BlockDigest(b)

	out := ValidateBlock(b, g, 0)
	require.False(t, out.Valid)
	assert.Equal(t, LinkBroken, out.Err.Kind)
}

func TestValidateDifficultyBoundary(t *testing.T) {
	g := NewGenesis()
	b := mustMine(t, "b1", g, []Transaction{testTx("t", 1)}, 2)
	zeros := LeadingZeros(b.Hash)
	require.GreaterOrEqual(t, zeros, 2)

	assert.True(t, ValidateBlock(b, g, zeros).Valid, "exactly the required zeros passes")
	assert.True(t, ValidateBlock(b, g, zeros-1).Valid, "more zeros than required passes")

	out := ValidateBlock(b, g, zeros+1)
	require.False(t, out.Valid)
	assert.Equal(t, InsufficientDifficulty, out.Err.Kind)
}

func TestValidateMissingParentSkipsLinkChecks(t *testing.T) {
	g := NewGenesis()
	b := mustMine(t, "b1", g, nil, 1)
	assert.True(t, ValidateBlock(b, nil, 1).Valid)
}

func TestKindText(t *testing.T) {
	text, err := LinkBroken.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "LinkBroken", string(text))

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("inheritedinvalidity")))
	assert.Equal(t, InheritedInvalidity, k)
	assert.Error(t, k.UnmarshalText([]byte("nope")))
}
