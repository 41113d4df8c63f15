package main

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/sha3"
)

type idempotencyState int

const (
	idemStart    idempotencyState = iota // caller should process, then complete()
	idemReplay                           // result holds the stored response
	idemInFlight                         // same key is being processed
	idemMismatch                         // key was used with a different body
)

type idempotencyResult struct {
	status int
	body   []byte
}

type idempotencyEntry struct {
	reqHash  [32]byte
	inFlight bool
	result   idempotencyResult
}

// idempotencyCache remembers responses to requests carrying an
// Idempotency-Key header so clients can retry safely.
type idempotencyCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, *idempotencyEntry]
}

func newIdempotencyCache(ttl time.Duration, maxEntries int) *idempotencyCache {
	return &idempotencyCache{
		entries: expirable.NewLRU[string, *idempotencyEntry](maxEntries, nil, ttl),
	}
}

func hashRequestBody(body []byte) [32]byte {
	return sha3.Sum256(body)
}

func (c *idempotencyCache) begin(key string, reqHash [32]byte) (idempotencyState, idempotencyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries.Get(key); ok {
		switch {
		case e.reqHash != reqHash:
			return idemMismatch, idempotencyResult{}
		case e.inFlight:
			return idemInFlight, idempotencyResult{}
		default:
			return idemReplay, e.result
		}
	}
	c.entries.Add(key, &idempotencyEntry{reqHash: reqHash, inFlight: true})
	return idemStart, idempotencyResult{}
}

func (c *idempotencyCache) complete(key string, reqHash [32]byte, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok {
		return
	}
	if e.reqHash != reqHash {
		c.entries.Remove(key)
		return
	}
	c.entries.Add(key, &idempotencyEntry{
		reqHash: reqHash,
		result:  idempotencyResult{status: status, body: append([]byte(nil), body...)},
	})
}

func (c *idempotencyCache) abandon(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}
