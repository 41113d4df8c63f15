package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocknetprivacy/blocksim/chain"
)

func newTestClient(t *testing.T) (*Client, *Daemon) {
	t.Helper()

	d := mustCreateTestDaemon(t)
	srv := httptest.NewServer(newTestAPIHandler(t, d, APIServerConfig{}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, testAPIToken, 30*time.Second), d
}

func TestClientRoundTrip(t *testing.T) {
	c, d := newTestClient(t)
	ctx := context.Background()

	stats, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Blocks)
	assert.True(t, stats.Valid)

	tx, err := c.AddTransaction(ctx, "Alice", "Bob", 3, "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", tx.From)
	assert.NotEmpty(t, tx.ID)

	b, err := c.Mine(ctx)
	require.NoError(t, err)
	require.Len(t, b.Transactions, 1)
	assert.Equal(t, tx.ID, b.Transactions[0].ID)
	assert.Equal(t, chain.BlockDigest(b), b.Hash)

	path, err := c.Path(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, path.Blocks, 2)
	assert.True(t, path.Validation.Valid)

	tips, err := c.Tips(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, tips.ActiveTip)

	tampered, err := c.Tamper(ctx, b.ID, 0, invalidTamperAmount(t, b))
	require.NoError(t, err)
	assert.False(t, tampered.Validation.Valid)
	assert.Equal(t, b.ID, tampered.Validation.FirstInvalidID)

	v, err := c.Validation(ctx)
	require.NoError(t, err)
	require.Contains(t, v.Validation.Errors, b.ID)
	assert.Equal(t, chain.InsufficientDifficulty, v.Validation.Errors[b.ID].Kind)

	sel, err := c.Select(ctx, chain.GenesisID)
	require.NoError(t, err)
	assert.True(t, sel.Validation.Valid)

	reset, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, chain.GenesisID, reset.GenesisID)
	assert.Len(t, d.Session().Blocks(), 1)
}

func TestClientIdempotentRetry(t *testing.T) {
	c, d := newTestClient(t)
	ctx := context.Background()

	first, err := c.AddTransaction(ctx, "Alice", "Bob", 1, "retry-1")
	require.NoError(t, err)
	second, err := c.AddTransaction(ctx, "Alice", "Bob", 1, "retry-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, d.Session().Mempool(), 1)
}

func TestClientAPIError(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Select(ctx, "nope")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "unknown block")

	_, err = c.AddTransaction(ctx, "", "Bob", 1, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestClientBadToken(t *testing.T) {
	d := mustCreateTestDaemon(t)
	srv := httptest.NewServer(newTestAPIHandler(t, d, APIServerConfig{}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong", 5*time.Second)
	_, err := c.Status(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestNewClientFromDataDir(t *testing.T) {
	dir := t.TempDir()

	_, err := NewClientFromDataDir("127.0.0.1:1", dir, time.Second)
	require.Error(t, err)

	require.NoError(t, writeCookie(dir, "secret"))
	token, err := readCookie(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	c, err := NewClientFromDataDir("127.0.0.1:1", dir, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, c)

	deleteCookie(dir)
	_, err = readCookie(dir)
	assert.Error(t, err)
}

func TestGenerateTokenIsBase58(t *testing.T) {
	a, err := generateToken()
	require.NoError(t, err)
	b, err := generateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, base58.Decode(a), tokenBytes)
}

func TestReadCookieMissing(t *testing.T) {
	_, err := readCookie(t.TempDir())
	assert.ErrorIs(t, err, ErrNoCookie)
}
