package main

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/pow"
	"github.com/blocknetprivacy/blocksim/protocol/params"
)

func TestNewSessionStartsAtGenesis(t *testing.T) {
	s := mustCreateTestSession(t, 2)

	v := s.View()
	if v.BlockCount != 1 {
		t.Fatalf("expected 1 block, got %d", v.BlockCount)
	}
	if v.ActiveTip != chain.GenesisID || v.LongestTip != chain.GenesisID {
		t.Fatalf("expected genesis to be active and longest, got active=%s longest=%s", v.ActiveTip, v.LongestTip)
	}
	if !v.Result.Valid || v.Result.Length != 1 {
		t.Fatalf("expected valid path of length 1, got %+v", v.Result)
	}
	if got := s.Tips(); len(got) != 1 || got[0] != chain.GenesisID {
		t.Fatalf("expected tips [genesis], got %v", got)
	}
	if s.Difficulty() != 2 {
		t.Fatalf("expected difficulty 2, got %d", s.Difficulty())
	}
}

func TestNewSessionRejectsDifficultyOutOfRange(t *testing.T) {
	for _, d := range []int{-1, params.MaxDifficulty + 1} {
		cfg := DefaultSessionConfig()
		cfg.Difficulty = d
		if _, err := NewSession(cfg); !errors.Is(err, ErrInvalidDifficulty) {
			t.Fatalf("difficulty %d: expected ErrInvalidDifficulty, got %v", d, err)
		}
	}
}

func TestMineBlockConsumesMempool(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	tx1 := mustAddTx(t, s, "Alice", "Bob", 10)
	tx2 := mustAddTx(t, s, "Bob", "Carol", 2.5)

	b := mustMineBlock(t, s)
	if b.Index != 1 {
		t.Fatalf("expected index 1, got %d", b.Index)
	}
	if b.Parent() != chain.GenesisID {
		t.Fatalf("expected parent genesis, got %s", b.Parent())
	}
	if len(b.Transactions) != 2 || b.Transactions[0].ID != tx1.ID || b.Transactions[1].ID != tx2.ID {
		t.Fatalf("block does not carry the pending transactions in order: %+v", b.Transactions)
	}
	if !chain.MeetsDifficulty(b.Hash, 1) {
		t.Fatalf("mined hash %s misses difficulty 1", b.Hash)
	}
	if b.Hash != chain.BlockDigest(b) {
		t.Fatalf("mined hash is not the block digest")
	}
	if got := len(s.Mempool()); got != 0 {
		t.Fatalf("expected empty mempool after mining, got %d", got)
	}

	v := s.View()
	if v.ActiveTip != b.ID || v.Selected != b.ID {
		t.Fatalf("expected mined block to be selected, got active=%s selected=%s", v.ActiveTip, v.Selected)
	}
	if !v.Result.Valid || v.Result.Length != 2 {
		t.Fatalf("expected valid path of length 2, got %+v", v.Result)
	}
}

func TestMineEmptyBlock(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	b := mustMineBlock(t, s)
	if b.Transactions == nil || len(b.Transactions) != 0 {
		t.Fatalf("expected empty non-nil transaction list, got %#v", b.Transactions)
	}
}

func TestTamperRipplesAndBlocksMining(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	mustAddTx(t, s, "Alice", "Bob", 10)
	b1 := mustMineBlock(t, s)
	mustAddTx(t, s, "Bob", "Carol", 3)
	b2 := mustMineBlock(t, s)

	tampered := mustTamperInvalid(t, s, b1.ID)
	if tampered.Hash == b1.Hash {
		t.Fatalf("tamper did not change the hash")
	}
	if tampered.Hash != chain.BlockDigest(tampered) {
		t.Fatalf("tampered hash is not recomputed")
	}

	after, _ := s.Block(b2.ID)
	if after.PreviousHash != b1.Hash {
		t.Fatalf("descendant previousHash must stay stale")
	}

	res := s.Validation()
	if res.Valid {
		t.Fatalf("expected invalid active path after tamper")
	}
	if res.FirstInvalidID != b1.ID {
		t.Fatalf("expected first invalid %s, got %s", b1.ID, res.FirstInvalidID)
	}
	if got := res.Errors[b1.ID]; got == nil || got.Kind != chain.InsufficientDifficulty {
		t.Fatalf("expected InsufficientDifficulty on tampered block, got %+v", got)
	}
	if got := res.Errors[b2.ID]; got == nil || got.Kind != chain.InheritedInvalidity {
		t.Fatalf("expected InheritedInvalidity on child, got %+v", got)
	}
	if _, ok := res.Errors[chain.GenesisID]; ok {
		t.Fatalf("genesis must stay valid")
	}
	for id, e := range res.Errors {
		if e.Explanation == "" || e.Technical == "" {
			t.Fatalf("error for %s lacks a message: %+v", id, e)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.MineBlock(ctx); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}
	if err := s.StartMining(ctx); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected StartMining to refuse, got %v", err)
	}
}

func TestSelectingGenesisRestoresMining(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	mustAddTx(t, s, "Alice", "Bob", 10)
	b1 := mustMineBlock(t, s)
	mustTamperInvalid(t, s, b1.ID)

	if err := s.SelectTip(chain.GenesisID); err != nil {
		t.Fatalf("select genesis: %v", err)
	}
	if !s.Validation().Valid {
		t.Fatalf("genesis path must be valid")
	}

	fork := mustMineBlock(t, s)
	if fork.Parent() != chain.GenesisID {
		t.Fatalf("expected fork on genesis, got parent %s", fork.Parent())
	}
	if len(s.Tips()) != 2 {
		t.Fatalf("expected two tips, got %v", s.Tips())
	}
}

func TestForkTieKeepsEarliestTip(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	a := mustMineBlock(t, s)
	if err := s.SelectTip(chain.GenesisID); err != nil {
		t.Fatalf("select genesis: %v", err)
	}
	b := mustMineBlock(t, s)

	tips := s.Tips()
	if len(tips) != 2 || tips[0] != a.ID || tips[1] != b.ID {
		t.Fatalf("expected tips [%s %s], got %v", a.ID, b.ID, tips)
	}

	v := s.View()
	if v.LongestTip != a.ID {
		t.Fatalf("tie must keep earliest tip %s, got %s", a.ID, v.LongestTip)
	}
	if v.ActiveTip != b.ID {
		t.Fatalf("expected newly mined block to be active, got %s", v.ActiveTip)
	}

	if active := s.SelectLongest(); active != a.ID {
		t.Fatalf("SelectLongest returned %s, want %s", active, a.ID)
	}
	if v := s.View(); v.Selected != "" || v.ActiveTip != a.ID {
		t.Fatalf("expected cleared selection following longest, got %+v", v)
	}

	c := mustMineBlock(t, s)
	if c.Parent() != a.ID {
		t.Fatalf("expected mining on longest tip %s, got parent %s", a.ID, c.Parent())
	}
}

func TestAppendBlockLeavesSelectionAlone(t *testing.T) {
	s := mustCreateTestSession(t, 0)

	mined := mustMineBlock(t, s)
	pending := mustAddTx(t, s, "Alice", "Bob", 1)

	g, _ := s.Block(chain.GenesisID)
	side := &chain.Block{
		ID:           "side",
		ParentID:     chain.StringPtr(g.ID),
		Index:        1,
		Timestamp:    time.Now().UnixMilli(),
		Transactions: []chain.Transaction{pending},
		PreviousHash: g.Hash,
	}
	side.Hash = chain.BlockDigest(side)

	if err := s.AppendBlock(side); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendBlock(side); !errors.Is(err, ErrDuplicateBlock) {
		t.Fatalf("expected ErrDuplicateBlock, got %v", err)
	}

	v := s.View()
	if v.Selected != mined.ID || v.ActiveTip != mined.ID {
		t.Fatalf("append changed the selection: %+v", v)
	}
	if mp := s.Mempool(); len(mp) != 1 || mp[0].ID != pending.ID {
		t.Fatalf("append changed the mempool: %+v", mp)
	}
	if !s.Tips().Contains("side") {
		t.Fatalf("appended block is not a tip")
	}

	orphan := side.Clone()
	orphan.ID = "orphan"
	orphan.ParentID = chain.StringPtr("missing")
	if err := s.AppendBlock(orphan); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("expected ErrUnknownBlock for missing parent, got %v", err)
	}
}

func TestDifficultyChangeKeepsHistoryValid(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	mustMineBlock(t, s)
	if err := s.SetDifficulty(4); err != nil {
		t.Fatalf("set difficulty: %v", err)
	}
	if !s.Validation().Valid {
		t.Fatalf("raising difficulty must not invalidate blocks mined earlier")
	}
	if err := s.SetDifficulty(params.MaxDifficulty + 1); !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("expected ErrInvalidDifficulty, got %v", err)
	}
}

func TestResetKeepsDifficulty(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	mustAddTx(t, s, "Alice", "Bob", 1)
	mustMineBlock(t, s)
	mustAddTx(t, s, "Alice", "Bob", 2)
	if err := s.SetDifficulty(0); err != nil {
		t.Fatalf("set difficulty: %v", err)
	}

	s.Reset()

	v := s.View()
	if v.BlockCount != 1 || v.ActiveTip != chain.GenesisID {
		t.Fatalf("expected fresh genesis after reset, got %+v", v)
	}
	if len(s.Mempool()) != 0 {
		t.Fatalf("expected empty mempool after reset")
	}
	if s.Difficulty() != 0 {
		t.Fatalf("reset changed difficulty to %d", s.Difficulty())
	}
	g, _ := s.Block(chain.GenesisID)
	if g.Hash != chain.NewGenesis().Hash {
		t.Fatalf("reset genesis hash differs from a fresh genesis")
	}
}

// solveActiveTip runs a search outside the miner so a test controls when
// the solution is committed.
func solveActiveTip(t *testing.T, s *Session) (uint64, string, pow.Template, pow.Result) {
	t.Helper()
	epoch := s.mineEpoch.Add(1)
	parentID, tmpl, err := s.miningTemplate()
	if err != nil {
		t.Fatalf("mining template: %v", err)
	}
	res, err := pow.Search(context.Background(), tmpl)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	return epoch, parentID, tmpl, res
}

func TestSolutionFromBeforeResetIsDiscarded(t *testing.T) {
	s := mustCreateTestSession(t, 1)
	mustAddTx(t, s, "Alice", "Bob", 5)

	epoch, parentID, tmpl, res := solveActiveTip(t, s)
	s.Reset()

	if _, err := s.commitMined(epoch, parentID, tmpl, res); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if v := s.View(); v.BlockCount != 1 || v.ActiveTip != chain.GenesisID {
		t.Fatalf("pre-reset block reached the fresh chain: %+v", v)
	}

	// The fresh chain still mines normally.
	b := mustMineBlock(t, s)
	if len(b.Transactions) != 0 {
		t.Fatalf("fresh block carried pre-reset transactions: %+v", b.Transactions)
	}
}

func TestSolutionDiscardedAfterStopOrNewerSearch(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	epoch, parentID, tmpl, res := solveActiveTip(t, s)
	s.StopMining()
	if _, err := s.commitMined(epoch, parentID, tmpl, res); !errors.Is(err, context.Canceled) {
		t.Fatalf("stopped: expected context.Canceled, got %v", err)
	}

	older, parentID, tmpl, res := solveActiveTip(t, s)
	newer, _, _, _ := solveActiveTip(t, s)
	if _, err := s.commitMined(older, parentID, tmpl, res); !errors.Is(err, context.Canceled) {
		t.Fatalf("superseded: expected context.Canceled, got %v", err)
	}
	b, err := s.commitMined(newer, parentID, tmpl, res)
	if err != nil {
		t.Fatalf("current search: %v", err)
	}
	if tips := s.Tips(); len(tips) != 1 || tips[0] != b.ID {
		t.Fatalf("expected a single tip %s, got %v", b.ID, tips)
	}
}

func TestSessionErrors(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	if err := s.SelectTip("nope"); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("SelectTip: expected ErrUnknownBlock, got %v", err)
	}
	if _, err := s.TamperAmount("nope", 0, 1); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("TamperAmount: expected ErrUnknownBlock, got %v", err)
	}
	if _, err := s.TamperAmount(chain.GenesisID, 0, 1); !errors.Is(err, ErrTxIndexOutOfRange) {
		t.Fatalf("TamperAmount: expected ErrTxIndexOutOfRange, got %v", err)
	}
	if _, err := s.Path("nope"); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("Path: expected ErrUnknownBlock, got %v", err)
	}
	if _, err := s.ValidateTip("nope"); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("ValidateTip: expected ErrUnknownBlock, got %v", err)
	}
	if _, err := s.AddTransaction(" ", "Bob", 1); !errors.Is(err, chain.ErrEmptyLabel) {
		t.Fatalf("AddTransaction: expected ErrEmptyLabel, got %v", err)
	}
	if _, err := s.AddTransaction("Alice", "Bob", -1); !errors.Is(err, chain.ErrInvalidAmount) {
		t.Fatalf("AddTransaction: expected ErrInvalidAmount, got %v", err)
	}
	if s.View().Version == 0 {
		t.Fatalf("expected a non-zero view version")
	}
}

func TestTamperBlockReplacesTransactions(t *testing.T) {
	s := mustCreateTestSession(t, 0)

	mustAddTx(t, s, "Alice", "Bob", 1)
	b := mustMineBlock(t, s)

	replacement := []chain.Transaction{{ID: "forged", From: "Mallory", To: "Mallory", Amount: 1e6, Timestamp: 1}}
	tampered, err := s.TamperBlock(b.ID, replacement)
	if err != nil {
		t.Fatalf("tamper: %v", err)
	}
	replacement[0].Amount = 1

	stored, _ := s.Block(b.ID)
	if stored.Transactions[0].Amount != 1e6 {
		t.Fatalf("stored block aliases the caller's slice")
	}
	if tampered.Nonce != b.Nonce || tampered.PreviousHash != b.PreviousHash {
		t.Fatalf("tamper must only touch transactions and hash")
	}
	// Difficulty 0 accepts any hash and there is no descendant.
	if !s.Validation().Valid {
		t.Fatalf("expected tip-only tamper at difficulty 0 to stay valid")
	}
}

func TestSessionPublishesEvents(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	events := s.Subscribe()
	defer s.Unsubscribe(events)

	tx := mustAddTx(t, s, "Alice", "Bob", 1)
	b := mustMineBlock(t, s)

	want := []string{EventTransaction, EventMinedBlock}
	deadline := time.After(5 * time.Second)
	for len(want) > 0 {
		select {
		case ev := <-events:
			if ev.Type == EventProgress {
				continue
			}
			if ev.Type != want[0] {
				t.Fatalf("expected %s event, got %s", want[0], ev.Type)
			}
			switch data := ev.Data.(type) {
			case chain.Transaction:
				if data.ID != tx.ID {
					t.Fatalf("transaction event carries %s, want %s", data.ID, tx.ID)
				}
			case *chain.Block:
				if data.ID != b.ID {
					t.Fatalf("mined_block event carries %s, want %s", data.ID, b.ID)
				}
			}
			want = want[1:]
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestStartMiningPublishesOutcome(t *testing.T) {
	s := mustCreateTestSession(t, 1)

	events := s.Subscribe()
	defer s.Unsubscribe(events)

	if err := s.StartMining(context.Background()); err != nil {
		t.Fatalf("start mining: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventMinedBlock:
				if s.View().BlockCount != 2 {
					t.Fatalf("expected 2 blocks after background mine")
				}
				return
			case EventMiningError:
				t.Fatalf("background mining failed: %v", ev.Data)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for mined_block")
		}
	}
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, storage := mustCreatePersistentSession(t, dir, 1)
	mustAddTx(t, s, "Alice", "Bob", 10)
	b1 := mustMineBlock(t, s)
	if err := s.SelectTip(chain.GenesisID); err != nil {
		t.Fatalf("select genesis: %v", err)
	}
	mustMineBlock(t, s)
	if err := s.SelectTip(b1.ID); err != nil {
		t.Fatalf("select %s: %v", b1.ID, err)
	}
	mustAddTx(t, s, "Carol", "Dave", 0.5)

	wantBlocks := s.Blocks()
	wantTips := s.Tips()
	wantMempool := s.Mempool()
	wantView := s.View()

	s.StopMining()
	if err := storage.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	restored, storage2 := mustCreatePersistentSession(t, dir, 3)
	defer storage2.Close()

	if !reflect.DeepEqual(restored.Blocks(), wantBlocks) {
		t.Fatalf("blocks differ after restore")
	}
	if !reflect.DeepEqual(restored.Tips(), wantTips) {
		t.Fatalf("tips differ after restore: got %v want %v", restored.Tips(), wantTips)
	}
	if !reflect.DeepEqual(restored.Mempool(), wantMempool) {
		t.Fatalf("mempool differs after restore")
	}
	v := restored.View()
	if v.Selected != wantView.Selected || v.ActiveTip != wantView.ActiveTip || v.LongestTip != wantView.LongestTip {
		t.Fatalf("selection differs after restore: got %+v want %+v", v, wantView)
	}
	if restored.Difficulty() != 1 {
		t.Fatalf("stored difficulty must win over config, got %d", restored.Difficulty())
	}
}
