package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/debug"
	"github.com/blocknetprivacy/blocksim/pow"
	"github.com/blocknetprivacy/blocksim/protocol/params"
)

// Operation errors. Validation failures are never reported through these;
// they are data on View.Result.
var (
	ErrChainBroken       = errors.New("chain broken, cannot mine")
	ErrUnknownBlock      = errors.New("unknown block")
	ErrDuplicateBlock    = errors.New("block id already exists")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrTxIndexOutOfRange = errors.New("transaction index out of range")
	ErrStaleTemplate     = errors.New("parent changed while mining")
)

// Event types published to subscribers.
const (
	EventTransaction = "transaction"
	EventMinedBlock  = "mined_block"
	EventBlock       = "block"
	EventTampered    = "tampered"
	EventReset       = "reset"
	EventDifficulty  = "difficulty"
	EventSelected    = "selected"
	EventProgress    = "progress"
	EventMiningError = "mining_error"
)

// Event is a state change notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// View is the derived state recomputed after every mutation.
type View struct {
	Version     uint64           `json:"version"`
	ActiveTip   string           `json:"activeTip"`
	LongestTip  string           `json:"longestTip"`
	Selected    string           `json:"selectedTipId,omitempty"`
	Result      chain.PathResult `json:"validation"`
	BlockCount  int              `json:"blockCount"`
	Difficulty  int              `json:"difficulty"`
	MempoolSize int              `json:"mempoolSize"`
}

// ChainProgress exposes the counters the tutorial derives its guards from.
type ChainProgress struct {
	BlockCount   int `json:"blockCount"`
	MinedBlocks  int `json:"minedBlocks"`
	MempoolSize  int `json:"mempoolSize"`
	BrokenBlocks int `json:"brokenBlocks"`
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Difficulty int
	Storage    *Storage // nil disables persistence
	Logger     *zap.Logger
	Metrics    *Metrics
	CacheSize  int
	Now        func() time.Time
}

// DefaultSessionConfig returns defaults suitable for tests and the shell.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Difficulty: params.DefaultDifficulty,
		CacheSize:  256,
		Now:        time.Now,
	}
}

type pathKey struct {
	version uint64
	tip     string
}

// Session owns one chain instance: the block map, tips, mempool, difficulty
// and selected tip. Every mutation is applied under the session lock and is
// immediately followed by recomputing the view, so readers never observe
// stale validity or tips.
type Session struct {
	mu      *debug.RWMutex
	logger  *zap.Logger
	metrics *Metrics
	storage *Storage
	now     func() time.Time

	mempool *Mempool
	miner   *Miner

	blocks     chain.BlockMap
	tips       chain.Tips
	genesisID  string
	difficulty int
	selected   string
	version    uint64
	view       View

	pathCache *lru.Cache[pathKey, chain.PathResult]

	// mineEpoch advances whenever the running search is superseded. A
	// solution is only committed while its epoch is current.
	mineEpoch atomic.Uint64

	saveMu    sync.Mutex
	savedVers uint64

	subsMu sync.Mutex
	subs   []chan Event
}

// NewSession creates a session, restoring the stored snapshot if one exists.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if err := checkDifficulty(cfg.Difficulty); err != nil {
		return nil, err
	}

	cache, err := lru.New[pathKey, chain.PathResult](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create path cache: %w", err)
	}

	s := &Session{
		mu:         debug.NewRWMutex("session"),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		storage:    cfg.Storage,
		now:        cfg.Now,
		mempool:    NewMempool(DefaultMempoolConfig()),
		miner:      NewMiner("honest", cfg.Logger, cfg.Metrics),
		difficulty: cfg.Difficulty,
		pathCache:  cache,
	}

	restored := false
	if s.storage != nil {
		snap, found, err := s.storage.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		if found {
			if err := s.restore(snap); err != nil {
				return nil, err
			}
			restored = true
			s.logger.Info("restored snapshot",
				zap.Int("blocks", len(s.blocks)),
				zap.Int("tips", len(s.tips)),
				zap.Int("difficulty", s.difficulty),
			)
		}
	}
	if !restored {
		s.resetLocked()
	}
	s.recomputeLocked()
	return s, nil
}

func checkDifficulty(n int) error {
	if n < 0 || n > params.MaxDifficulty {
		return fmt.Errorf("%w: %d (allowed 0..%d)", ErrInvalidDifficulty, n, params.MaxDifficulty)
	}
	return nil
}

func (s *Session) restore(snap *Snapshot) error {
	if len(snap.Blocks) == 0 {
		return fmt.Errorf("snapshot has no blocks")
	}
	if _, ok := snap.Blocks[snap.GenesisID]; !ok {
		return fmt.Errorf("snapshot genesis %q not in block map", snap.GenesisID)
	}
	if err := checkDifficulty(snap.Difficulty); err != nil {
		return err
	}

	s.blocks = snap.Blocks
	s.genesisID = snap.GenesisID
	s.difficulty = snap.Difficulty
	s.mempool.Replace(snap.Mempool)

	s.tips = nil
	for _, id := range snap.Tips {
		if _, ok := s.blocks[id]; ok {
			s.tips = append(s.tips, id)
		}
	}
	if len(s.tips) == 0 {
		s.tips = chain.ComputeTips(s.blocks)
	}

	if _, ok := s.blocks[snap.Selected]; ok {
		s.selected = snap.Selected
	}
	return nil
}

// resetLocked installs a fresh genesis. Difficulty is kept.
func (s *Session) resetLocked() {
	g := chain.NewGenesis()
	s.blocks = chain.BlockMap{g.ID: g}
	s.tips = chain.Tips{g.ID}
	s.genesisID = g.ID
	s.selected = g.ID
	s.mempool.Clear()
}

// recomputeLocked refreshes the derived view. Callers hold the write lock.
func (s *Session) recomputeLocked() {
	s.version++

	longest := chain.LongestChainTip(s.blocks, s.tips)
	active := longest
	if s.selected != "" {
		if _, ok := s.blocks[s.selected]; ok {
			active = s.selected
		}
	}

	res := s.validateLocked(active)
	prev := s.view.Result
	s.view = View{
		Version:     s.version,
		ActiveTip:   active,
		LongestTip:  longest,
		Selected:    s.selected,
		Result:      res,
		BlockCount:  len(s.blocks),
		Difficulty:  s.difficulty,
		MempoolSize: s.mempool.Size(),
	}

	if !res.Valid && res.FirstInvalidID != prev.FirstInvalidID {
		kind := res.Errors[res.FirstInvalidID].Kind
		s.metrics.validationFailed(kind)
		s.logger.Info("active path invalid",
			zap.String("tip", active),
			zap.String("first_invalid", res.FirstInvalidID),
			zap.Stringer("kind", kind),
			zap.Int("affected", len(res.Errors)),
		)
	}
	s.metrics.observeView(s.view, len(s.tips), s.view.MempoolSize)
}

func (s *Session) validateLocked(tip string) chain.PathResult {
	key := pathKey{version: s.version, tip: tip}
	if res, ok := s.pathCache.Get(key); ok {
		return res
	}
	res := chain.ValidatePath(s.blocks, tip, chain.PerBlockDifficulty)
	s.pathCache.Add(key, res)
	return res
}

// ============================================================================
// Events
// ============================================================================

// Subscribe returns a channel that receives session events
func (s *Session) Subscribe() chan Event {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	ch := make(chan Event, 32)
	s.subs = append(s.subs, ch)
	return ch
}

// Unsubscribe removes a channel returned by Subscribe
func (s *Session) Unsubscribe(ch chan Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, c := range s.subs {
		if c == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Session) publish(typ string, data any) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	ev := Event{Type: typ, Data: data}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default: // Don't block if subscriber is slow
		}
	}
}

// ============================================================================
// Persistence
// ============================================================================

func (s *Session) snapshotLocked() *Snapshot {
	return &Snapshot{
		Blocks:     s.blocks.Clone(),
		Tips:       s.tips.Clone(),
		GenesisID:  s.genesisID,
		Selected:   s.selected,
		Difficulty: s.difficulty,
		Mempool:    s.mempool.All(),
	}
}

// persist writes snap if it is newer than what was last written.
func (s *Session) persist(snap *Snapshot, version uint64) {
	if s.storage == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.savedVers {
		return
	}
	if err := s.storage.Save(snap); err != nil {
		s.logger.Warn("failed to save snapshot", zap.Error(err))
		return
	}
	s.savedVers = version
}

// commitLocked recomputes derived state and captures a snapshot for saving.
// The caller must call persist after releasing the lock.
func (s *Session) commitLocked() (*Snapshot, uint64) {
	s.recomputeLocked()
	if s.storage == nil {
		return nil, s.version
	}
	return s.snapshotLocked(), s.version
}

// Save writes the current state to storage.
func (s *Session) Save() error {
	if s.storage == nil {
		return fmt.Errorf("persistence disabled")
	}
	s.mu.RLock()
	snap, version := s.snapshotLocked(), s.version
	s.mu.RUnlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.storage.Save(snap); err != nil {
		return err
	}
	if version > s.savedVers {
		s.savedVers = version
	}
	return nil
}

// ============================================================================
// Mutations
// ============================================================================

// AddTransaction queues a new transaction in the mempool.
func (s *Session) AddTransaction(from, to string, amount float64) (chain.Transaction, error) {
	tx, err := chain.NewTransaction(from, to, amount, s.now().UnixMilli())
	if err != nil {
		return chain.Transaction{}, err
	}

	s.mu.Lock()
	if err := s.mempool.Add(tx); err != nil {
		s.mu.Unlock()
		return chain.Transaction{}, err
	}
	snap, version := s.commitLocked()
	s.mu.Unlock()

	s.persist(snap, version)
	s.publish(EventTransaction, tx)
	return tx, nil
}

// ClearMempool drops every pending transaction.
func (s *Session) ClearMempool() {
	s.mu.Lock()
	s.mempool.Clear()
	snap, version := s.commitLocked()
	s.mu.Unlock()
	s.persist(snap, version)
}

// miningTemplate captures everything a search needs from the active tip.
func (s *Session) miningTemplate() (parentID string, tmpl pow.Template, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.view.Result.Valid {
		return "", pow.Template{}, fmt.Errorf("%w: first invalid block %s", ErrChainBroken, s.view.Result.FirstInvalidID)
	}
	parent, ok := s.blocks[s.view.ActiveTip]
	if !ok {
		return "", pow.Template{}, fmt.Errorf("%w: %s", ErrUnknownBlock, s.view.ActiveTip)
	}
	return parent.ID, pow.Template{
		Index:        parent.Index + 1,
		Timestamp:    s.now().UnixMilli(),
		Transactions: s.mempool.All(),
		PreviousHash: parent.Hash,
		Difficulty:   s.difficulty,
	}, nil
}

// MineBlock mines one block on the active tip with the pending transactions.
// It refuses with ErrChainBroken when the active path is invalid. Starting
// a new mine cancels any search still running.
func (s *Session) MineBlock(ctx context.Context) (*chain.Block, error) {
	epoch := s.mineEpoch.Add(1)
	parentID, tmpl, err := s.miningTemplate()
	if err != nil {
		return nil, err
	}

	s.logger.Info("mining block",
		zap.Int64("index", tmpl.Index),
		zap.String("parent", parentID),
		zap.Int("difficulty", tmpl.Difficulty),
		zap.Int("txs", len(tmpl.Transactions)),
	)

	res, err := s.miner.Mine(ctx, tmpl, func(p pow.Progress) {
		s.publish(EventProgress, p)
	})
	if err != nil {
		return nil, err
	}
	return s.commitMined(epoch, parentID, tmpl, res)
}

// commitMined appends a solved template to the chain. It fails with
// context.Canceled once the search has been superseded.
func (s *Session) commitMined(epoch uint64, parentID string, tmpl pow.Template, res pow.Result) (*chain.Block, error) {
	b := &chain.Block{
		ID:           chain.NewID(),
		ParentID:     chain.StringPtr(parentID),
		Index:        tmpl.Index,
		Timestamp:    tmpl.Timestamp,
		Transactions: tmpl.Transactions,
		Nonce:        res.Nonce,
		PreviousHash: tmpl.PreviousHash,
		Difficulty:   tmpl.Difficulty,
		Hash:         res.Hash,
	}
	if b.Transactions == nil {
		b.Transactions = []chain.Transaction{}
	}

	s.mu.Lock()
	if s.mineEpoch.Load() != epoch {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: search superseded", context.Canceled)
	}
	parent, ok := s.blocks[parentID]
	if !ok || parent.Hash != tmpl.PreviousHash {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrStaleTemplate, parentID)
	}
	if res := s.validateLocked(parentID); !res.Valid {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: first invalid block %s", ErrChainBroken, res.FirstInvalidID)
	}
	s.appendLocked(b)
	s.selected = b.ID
	s.mempool.Remove(b.Transactions)
	snap, version := s.commitLocked()
	s.mu.Unlock()

	s.persist(snap, version)
	s.metrics.blockMined("honest")
	s.logger.Info("mined block",
		zap.String("id", b.ID),
		zap.Int64("index", b.Index),
		zap.Uint64("nonce", b.Nonce),
		zap.String("hash", b.Hash),
	)
	s.publish(EventMinedBlock, b.Clone())
	return b.Clone(), nil
}

// StartMining mines one block in the background. The outcome is published
// as a mined_block or mining_error event.
func (s *Session) StartMining(ctx context.Context) error {
	if _, _, err := s.miningTemplate(); err != nil {
		return err
	}
	go func() {
		if _, err := s.MineBlock(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("mining failed", zap.Error(err))
			}
			s.publish(EventMiningError, map[string]string{"error": err.Error()})
		}
	}()
	return nil
}

// StopMining cancels the active search.
func (s *Session) StopMining() {
	s.mineEpoch.Add(1)
	s.miner.Stop()
}

// AppendBlock adds an externally built block, such as one from the attack
// simulator. The block is not validated; its parent must exist and its id
// must be new. Selection and mempool are left untouched.
func (s *Session) AppendBlock(b *chain.Block) error {
	if b == nil || b.ParentID == nil {
		return fmt.Errorf("%w: block must have a parent", ErrUnknownBlock)
	}

	s.mu.Lock()
	if _, ok := s.blocks[*b.ParentID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: parent %s", ErrUnknownBlock, *b.ParentID)
	}
	if _, dup := s.blocks[b.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, b.ID)
	}
	s.appendLocked(b.Clone())
	snap, version := s.commitLocked()
	s.mu.Unlock()

	s.persist(snap, version)
	s.publish(EventBlock, b.Clone())
	return nil
}

func (s *Session) appendLocked(b *chain.Block) {
	s.blocks[b.ID] = b
	s.tips.Append(b.Parent(), b.ID)
}

// TamperBlock replaces a block's transactions and recomputes only that
// block's hash. Descendants keep their now stale previousHash.
func (s *Session) TamperBlock(id string, txs []chain.Transaction) (*chain.Block, error) {
	s.mu.Lock()
	b, ok := s.blocks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	replaced := make([]chain.Transaction, len(txs))
	copy(replaced, txs)

	tampered := b.Clone()
	tampered.Transactions = replaced
	tampered.Hash = chain.BlockDigest(tampered)
	s.blocks[id] = tampered
	snap, version := s.commitLocked()
	view := s.view
	s.mu.Unlock()

	s.persist(snap, version)
	s.metrics.tampered()
	s.logger.Info("tampered block",
		zap.String("id", id),
		zap.String("old_hash", b.Hash),
		zap.String("new_hash", tampered.Hash),
		zap.Bool("active_path_valid", view.Result.Valid),
	)
	s.publish(EventTampered, map[string]any{
		"id":                  id,
		"hash":                tampered.Hash,
		"isValid":             view.Result.Valid,
		"firstInvalidBlockId": view.Result.FirstInvalidID,
	})
	return tampered.Clone(), nil
}

// TamperAmount changes the amount of one transaction in a block.
func (s *Session) TamperAmount(id string, txIndex int, amount float64) (*chain.Block, error) {
	s.mu.RLock()
	b, ok := s.blocks[id]
	var txs []chain.Transaction
	if ok {
		txs = make([]chain.Transaction, len(b.Transactions))
		copy(txs, b.Transactions)
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	if txIndex < 0 || txIndex >= len(txs) {
		return nil, fmt.Errorf("%w: %d (block has %d)", ErrTxIndexOutOfRange, txIndex, len(txs))
	}
	txs[txIndex].Amount = amount
	return s.TamperBlock(id, txs)
}

// SetDifficulty changes the difficulty used for new blocks.
func (s *Session) SetDifficulty(n int) error {
	if err := checkDifficulty(n); err != nil {
		return err
	}
	s.mu.Lock()
	s.difficulty = n
	snap, version := s.commitLocked()
	s.mu.Unlock()

	s.persist(snap, version)
	s.publish(EventDifficulty, n)
	return nil
}

// SelectTip makes id the active tip. Any known block may be selected.
func (s *Session) SelectTip(id string) error {
	s.mu.Lock()
	if _, ok := s.blocks[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	s.selected = id
	snap, version := s.commitLocked()
	s.mu.Unlock()

	s.persist(snap, version)
	s.publish(EventSelected, id)
	return nil
}

// SelectLongest clears the selection so the longest chain is active.
func (s *Session) SelectLongest() string {
	s.mu.Lock()
	s.selected = ""
	snap, version := s.commitLocked()
	active := s.view.ActiveTip
	s.mu.Unlock()

	s.persist(snap, version)
	s.publish(EventSelected, active)
	return active
}

// Reset stops mining and replaces everything with a fresh genesis.
func (s *Session) Reset() {
	s.mineEpoch.Add(1)
	s.miner.Stop()

	s.mu.Lock()
	s.mineEpoch.Add(1)
	s.resetLocked()
	snap, version := s.commitLocked()
	s.mu.Unlock()

	s.persist(snap, version)
	s.logger.Info("chain reset")
	s.publish(EventReset, nil)
}

// ============================================================================
// Reads
// ============================================================================

// View returns the current derived state.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Validation returns the validation result for the active path.
func (s *Session) Validation() chain.PathResult {
	return s.View().Result
}

// ValidateTip validates the path ending at any known block.
func (s *Session) ValidateTip(id string) (chain.PathResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blocks[id]; !ok {
		return chain.PathResult{}, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	return s.validateLocked(id), nil
}

// Path returns copies of the blocks from genesis to id.
func (s *Session) Path(id string) ([]*chain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blocks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	path := chain.Path(s.blocks, id)
	out := make([]*chain.Block, len(path))
	for i, b := range path {
		out[i] = b.Clone()
	}
	return out, nil
}

// ActivePath returns the path to the active tip.
func (s *Session) ActivePath() []*chain.Block {
	s.mu.RLock()
	tip := s.view.ActiveTip
	s.mu.RUnlock()
	path, _ := s.Path(tip)
	return path
}

// LongestPath returns the path to the longest-chain tip.
func (s *Session) LongestPath() []*chain.Block {
	s.mu.RLock()
	tip := s.view.LongestTip
	s.mu.RUnlock()
	path, _ := s.Path(tip)
	return path
}

// Block returns a copy of the block with the given id.
func (s *Session) Block(id string) (*chain.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Blocks returns a deep copy of the block map.
func (s *Session) Blocks() chain.BlockMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks.Clone()
}

// BlocksByHeight groups copies of all blocks by index.
func (s *Session) BlocksByHeight() [][]*chain.Block {
	return chain.BlocksByHeight(s.Blocks())
}

// Tips returns the current tips in the order they were created.
func (s *Session) Tips() chain.Tips {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tips.Clone()
}

// GenesisID returns the root block identifier.
func (s *Session) GenesisID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genesisID
}

// Difficulty returns the difficulty used for new blocks.
func (s *Session) Difficulty() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.difficulty
}

// Mempool returns the pending transactions.
func (s *Session) Mempool() []chain.Transaction {
	return s.mempool.All()
}

// Miner returns the session's miner.
func (s *Session) Miner() *Miner {
	return s.miner
}

// Progress derives the tutorial counters from chain state.
func (s *Session) Progress() ChainProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mined := 0
	for _, b := range s.blocks {
		if !chain.IsGenesis(b) && !b.IsAttacker {
			mined++
		}
	}
	return ChainProgress{
		BlockCount:   len(s.blocks),
		MinedBlocks:  mined,
		MempoolSize:  s.mempool.Size(),
		BrokenBlocks: len(s.view.Result.Errors),
	}
}
