package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/blocknetprivacy/blocksim/pow"
)

// MinerStats holds mining statistics
type MinerStats struct {
	HashCount   uint64    `json:"hash_count"`
	BlocksFound uint64    `json:"blocks_found"`
	Cancelled   uint64    `json:"cancelled"`
	StartTime   time.Time `json:"start_time"`
	LastFound   time.Time `json:"last_found,omitempty"`
}

// Miner runs at most one proof-of-work search at a time. Starting a new
// search cancels the previous one and waits for it to exit first.
type Miner struct {
	name    string
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running     atomic.Bool
	hashCount   atomic.Uint64
	blocksFound atomic.Uint64
	cancelled   atomic.Uint64
	lastFound   atomic.Int64
	startTime   time.Time
	progress    atomic.Pointer[pow.Progress]
}

// NewMiner creates an idle miner. name labels its metrics and log lines.
func NewMiner(name string, logger *zap.Logger, metrics *Metrics) *Miner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Miner{
		name:      name,
		logger:    logger.With(zap.String("miner", name)),
		metrics:   metrics,
		startTime: time.Now(),
	}
}

// Mine searches for a nonce satisfying tmpl. onProgress, if set, receives
// periodic snapshots on the search goroutine and must not block.
//
// Mine returns context.Canceled if the search was superseded or stopped,
// and ctx.Err() if ctx ended.
func (m *Miner) Mine(ctx context.Context, tmpl pow.Template, onProgress func(pow.Progress)) (pow.Result, error) {
	m.mu.Lock()
	m.stopLocked()
	mineCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.running.Store(true)
	m.progress.Store(nil)
	m.mu.Unlock()

	type outcome struct {
		res pow.Result
		err error
	}
	resultChan := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer close(done)

		var counted uint64
		res, err := pow.Search(mineCtx, tmpl, pow.WithProgress(func(p pow.Progress) {
			seen := p.Nonce + 1
			m.hashCount.Add(seen - counted)
			m.metrics.addHashes(seen - counted)
			counted = seen
			m.progress.Store(&p)
			if onProgress != nil {
				onProgress(p)
			}
		}))
		if err == nil && res.Attempts > counted {
			m.hashCount.Add(res.Attempts - counted)
			m.metrics.addHashes(res.Attempts - counted)
		}
		resultChan <- outcome{res, err}
	}()

	stopWorkers := func() {
		cancel()
		<-done
		m.mu.Lock()
		if m.done == done {
			m.cancel, m.done = nil, nil
			m.running.Store(false)
		}
		m.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		stopWorkers()
		m.cancelled.Add(1)
		m.metrics.searchFinished(m.name, "cancelled", time.Since(start))
		return pow.Result{}, ctx.Err()

	case out := <-resultChan:
		<-done
		// Claim the result under the lock. If stopLocked got here first the
		// search was superseded and its solution is discarded.
		m.mu.Lock()
		superseded := m.done != done
		if !superseded {
			m.cancel, m.done = nil, nil
			m.running.Store(false)
		}
		m.mu.Unlock()
		cancel()

		if out.err == nil && (superseded || ctx.Err() != nil) {
			out = outcome{err: context.Canceled}
			if err := ctx.Err(); err != nil {
				out.err = err
			}
		}
		if out.err != nil {
			if errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded) {
				m.cancelled.Add(1)
				m.metrics.searchFinished(m.name, "cancelled", time.Since(start))
			} else {
				m.metrics.searchFinished(m.name, "error", time.Since(start))
			}
			return pow.Result{}, out.err
		}

		m.blocksFound.Add(1)
		m.lastFound.Store(time.Now().UnixNano())
		m.metrics.searchFinished(m.name, "found", time.Since(start))
		m.logger.Debug("nonce found",
			zap.Int64("index", tmpl.Index),
			zap.Int("difficulty", tmpl.Difficulty),
			zap.Uint64("nonce", out.res.Nonce),
			zap.Duration("elapsed", time.Since(start)),
		)
		return out.res, nil
	}
}

// stopLocked cancels the active search and waits for its goroutine.
func (m *Miner) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
	m.running.Store(false)
}

// Stop cancels the active search, if any.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// IsRunning returns true while a search is active
func (m *Miner) IsRunning() bool {
	return m.running.Load()
}

// Progress returns the latest progress report of the active search.
func (m *Miner) Progress() (pow.Progress, bool) {
	p := m.progress.Load()
	if p == nil || !m.IsRunning() {
		return pow.Progress{}, false
	}
	return *p, true
}

// Stats returns current mining statistics
func (m *Miner) Stats() MinerStats {
	s := MinerStats{
		HashCount:   m.hashCount.Load(),
		BlocksFound: m.blocksFound.Load(),
		Cancelled:   m.cancelled.Load(),
		StartTime:   m.startTime,
	}
	if ns := m.lastFound.Load(); ns != 0 {
		s.LastFound = time.Unix(0, ns)
	}
	return s
}

// HashRate returns the average hash rate (hashes per second) since start.
func (m *Miner) HashRate() float64 {
	stats := m.Stats()
	elapsed := time.Since(stats.StartTime).Seconds()
	if elapsed < 1 {
		return 0
	}
	return float64(stats.HashCount) / elapsed
}
