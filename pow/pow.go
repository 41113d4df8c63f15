// Package pow implements the brute-force nonce search that produces block
// hashes accepted by chain.ValidateBlock.
package pow

import (
	"context"
	"errors"
	"fmt"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/protocol/params"
)

var (
	ErrInvalidDifficulty = errors.New("difficulty must not be negative")
	ErrNonceExhausted    = errors.New("nonce limit reached without a solution")
)

// Template holds the block fields the search hashes over.
type Template struct {
	Index        int64
	Timestamp    int64
	Transactions []chain.Transaction
	PreviousHash string
	Difficulty   int
}

// Result is the first nonce that satisfies the template's difficulty.
type Result struct {
	Nonce    uint64 `json:"nonce"`
	Hash     string `json:"hash"`
	Attempts uint64 `json:"attempts"`
}

// Progress is a periodic snapshot of the search.
type Progress struct {
	Nonce uint64 `json:"nonce"`
	Hash  string `json:"hash"`
}

type options struct {
	interval   uint64
	onProgress func(Progress)
	maxNonce   uint64
	hasMax     bool
}

// Option configures Search.
type Option func(*options)

// WithProgress registers a callback invoked every progress interval. It runs
// on the searching goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.onProgress = fn }
}

// WithInterval overrides how many nonces pass between progress reports and
// cancellation checks.
func WithInterval(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.interval = n
		}
	}
}

// WithMaxNonce bounds the search. Intended for tests; real searches are
// unbounded.
func WithMaxNonce(n uint64) Option {
	return func(o *options) {
		o.maxNonce = n
		o.hasMax = true
	}
}

// Search tries nonces 0, 1, 2, ... until the digest meets the template's
// difficulty. The context is checked every interval nonces and again before
// a solution is returned; on cancellation Search returns ctx.Err() and no
// result.
func Search(ctx context.Context, tmpl Template, opts ...Option) (Result, error) {
	if tmpl.Difficulty < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidDifficulty, tmpl.Difficulty)
	}

	o := options{interval: params.ProgressInterval}
	for _, opt := range opts {
		opt(&o)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	h := chain.NewHasher(tmpl.Index, tmpl.Timestamp, tmpl.Transactions, tmpl.PreviousHash)
	for nonce := uint64(0); ; nonce++ {
		if o.hasMax && nonce > o.maxNonce {
			return Result{}, ErrNonceExhausted
		}

		hash := h.Sum(nonce)
		if chain.MeetsDifficulty(hash, tmpl.Difficulty) {
			// A cancelled search never reports a solution.
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			return Result{Nonce: nonce, Hash: hash, Attempts: nonce + 1}, nil
		}

		if nonce%o.interval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if o.onProgress != nil {
				o.onProgress(Progress{Nonce: nonce, Hash: hash})
			}
		}
	}
}

// Solve runs Search and fills in the resulting nonce and hash on a block
// built from tmpl. The block's identity fields are left to the caller.
func Solve(ctx context.Context, tmpl Template, opts ...Option) (*chain.Block, Result, error) {
	res, err := Search(ctx, tmpl, opts...)
	if err != nil {
		return nil, Result{}, err
	}
	txs := tmpl.Transactions
	if txs == nil {
		txs = []chain.Transaction{}
	}
	return &chain.Block{
		Index:        tmpl.Index,
		Timestamp:    tmpl.Timestamp,
		Transactions: txs,
		Nonce:        res.Nonce,
		PreviousHash: tmpl.PreviousHash,
		Difficulty:   tmpl.Difficulty,
		Hash:         res.Hash,
	}, res, nil
}
