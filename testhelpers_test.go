package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blocknetprivacy/blocksim/chain"
)

const testAPIToken = "test-token"

func mustCreateTestSession(t *testing.T, difficulty int) *Session {
	t.Helper()

	cfg := DefaultSessionConfig()
	cfg.Difficulty = difficulty
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(s.StopMining)
	return s
}

func mustCreatePersistentSession(t *testing.T, dataDir string, difficulty int) (*Session, *Storage) {
	t.Helper()

	storage, err := NewStorage(dataDir)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	cfg := DefaultSessionConfig()
	cfg.Difficulty = difficulty
	cfg.Storage = storage
	s, err := NewSession(cfg)
	if err != nil {
		storage.Close()
		t.Fatalf("failed to create session: %v", err)
	}
	return s, storage
}

func mustMineBlock(t *testing.T, s *Session) *chain.Block {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b, err := s.MineBlock(ctx)
	if err != nil {
		t.Fatalf("failed to mine block: %v", err)
	}
	return b
}

func mustAddTx(t *testing.T, s *Session, from, to string, amount float64) chain.Transaction {
	t.Helper()

	tx, err := s.AddTransaction(from, to, amount)
	if err != nil {
		t.Fatalf("failed to add transaction: %v", err)
	}
	return tx
}

// invalidTamperAmount finds an amount for the first transaction of b whose
// recomputed hash misses b's difficulty.
func invalidTamperAmount(t *testing.T, b *chain.Block) float64 {
	t.Helper()

	if len(b.Transactions) == 0 {
		t.Fatalf("block %s has no transactions to tamper", b.ID)
	}
	if b.Difficulty == 0 {
		t.Fatalf("block %s has difficulty 0, every hash meets it", b.ID)
	}
	for amount := 1000.0; amount < 2000; amount++ {
		candidate := b.Clone()
		candidate.Transactions[0].Amount = amount
		if !chain.MeetsDifficulty(chain.BlockDigest(candidate), candidate.Difficulty) {
			return amount
		}
	}
	t.Fatalf("no amount in range produced an insufficient hash")
	return 0
}

// mustTamperInvalid tampers block id so that it fails its difficulty.
func mustTamperInvalid(t *testing.T, s *Session, id string) *chain.Block {
	t.Helper()

	b, ok := s.Block(id)
	if !ok {
		t.Fatalf("block %s not found", id)
	}
	tampered, err := s.TamperAmount(id, 0, invalidTamperAmount(t, b))
	if err != nil {
		t.Fatalf("failed to tamper block: %v", err)
	}
	return tampered
}

func mustCreateTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := DefaultDaemonConfig()
	cfg.DataDir = t.TempDir()
	cfg.Persist = false
	cfg.Difficulty = 1
	d, err := NewDaemon(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Stop(); err != nil {
			t.Errorf("failed to stop daemon: %v", err)
		}
	})
	return d
}

func newTestAPIHandler(t *testing.T, d *Daemon, cfg APIServerConfig) http.Handler {
	t.Helper()

	if cfg.Rate == 0 {
		cfg.Rate = 1000
	}
	if cfg.Burst == 0 {
		cfg.Burst = 1000
	}
	api := NewAPIServer(d, t.TempDir(), cfg, nil)
	return api.handler(testAPIToken)
}

func doAPIRequest(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.RemoteAddr = "198.51.100.20:1234"
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
