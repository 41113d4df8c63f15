package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/pow"
	"github.com/blocknetprivacy/blocksim/protocol/params"
)

var (
	ErrAttackRunning = errors.New("attack already running")
	ErrInvalidPower  = errors.New("attacker power must be between 1 and 99")
)

// AttackStatus describes the attack simulator.
type AttackStatus struct {
	Running    bool   `json:"running"`
	Power      int    `json:"power"`
	ForkBase   string `json:"forkBase,omitempty"`
	Tip        string `json:"tip,omitempty"`
	Blocks     int64  `json:"blocks"`
	DelayMS    int64  `json:"delayMs"`
	Difficulty int    `json:"difficulty"`
}

// Attacker simulates a majority-hashpower attacker mining a private branch
// from just behind the longest chain. It has its own miner, so honest
// mining and attacking can run side by side.
type Attacker struct {
	session *Session
	miner   *Miner
	logger  *zap.Logger
	metrics *Metrics

	power  atomic.Int32
	blocks atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	forkBase string
	tip      string
}

// NewAttacker creates an idle attacker bound to session.
func NewAttacker(session *Session, logger *zap.Logger, metrics *Metrics) *Attacker {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Attacker{
		session: session,
		miner:   NewMiner("attacker", logger, metrics),
		logger:  logger.With(zap.String("component", "attacker")),
		metrics: metrics,
	}
	a.power.Store(params.DefaultAttackerPower)
	return a
}

// SetPower sets the attacker's share of hash power in percent.
func (a *Attacker) SetPower(p int) error {
	if p < 1 || p > 99 {
		return fmt.Errorf("%w: got %d", ErrInvalidPower, p)
	}
	a.power.Store(int32(p))
	return nil
}

// Power returns the attacker's share of hash power in percent.
func (a *Attacker) Power() int {
	return int(a.power.Load())
}

// Delay is the pause before each attacker block. More power means less
// waiting, down to a floor.
func (a *Attacker) Delay() time.Duration {
	ms := max(params.AttackerMinDelayMS, (100-a.Power())*params.AttackerDelayPerPowerMS)
	return time.Duration(ms) * time.Millisecond
}

// Difficulty is the attacker's mining difficulty: one below the session's,
// but never zero.
func (a *Attacker) Difficulty() int {
	return max(1, a.session.Difficulty()-1)
}

// forkPoint picks the block the private branch starts from: the parent of
// the longest-chain tip, or genesis for chains of two blocks or fewer.
func (a *Attacker) forkPoint() (string, error) {
	path := a.session.LongestPath()
	if len(path) > 2 {
		return path[len(path)-2].ID, nil
	}
	genesis := a.session.GenesisID()
	if _, ok := a.session.Block(genesis); !ok {
		return "", fmt.Errorf("%w: genesis %s", ErrUnknownBlock, genesis)
	}
	return genesis, nil
}

// Start begins the attack loop in the background.
func (a *Attacker) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return ErrAttackRunning
	}
	base, err := a.forkPoint()
	if err != nil {
		return err
	}
	a.forkBase, a.tip = base, base
	a.blocks.Store(0)

	attackCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel, a.done = cancel, done

	a.logger.Info("attack started",
		zap.String("fork_base", base),
		zap.Int("power", a.Power()),
		zap.Duration("delay", a.Delay()),
	)

	go func() {
		defer close(done)
		defer func() {
			a.mu.Lock()
			if a.done == done {
				a.cancel, a.done = nil, nil
			}
			a.mu.Unlock()
		}()
		a.loop(attackCtx)
	}()
	return nil
}

func (a *Attacker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.Delay()):
		}

		if _, err := a.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrUnknownBlock) {
				a.logger.Info("attack branch vanished, stopping", zap.Error(err))
				return
			}
			a.logger.Warn("attacker failed to mine", zap.Error(err))
		}
	}
}

// Step mines and appends one attacker block on the attacker's tip.
func (a *Attacker) Step(ctx context.Context) (*chain.Block, error) {
	a.mu.Lock()
	parentID := a.tip
	a.mu.Unlock()
	if parentID == "" {
		base, err := a.forkPoint()
		if err != nil {
			return nil, err
		}
		parentID = base
	}

	parent, ok := a.session.Block(parentID)
	if !ok {
		return nil, fmt.Errorf("%w: attacker tip %s", ErrUnknownBlock, parentID)
	}

	now := a.session.now().UnixMilli()
	tmpl := pow.Template{
		Index:     parent.Index + 1,
		Timestamp: now,
		Transactions: []chain.Transaction{{
			ID:        fmt.Sprintf("%s%d", params.AttackerIDPrefix, now),
			From:      params.AttackerFrom,
			To:        params.AttackerTo,
			Amount:    params.AttackerAmount,
			Timestamp: now,
		}},
		PreviousHash: parent.Hash,
		Difficulty:   a.Difficulty(),
	}

	res, err := a.miner.Mine(ctx, tmpl, nil)
	if err != nil {
		return nil, err
	}

	b := &chain.Block{
		ID:           chain.NewPrefixedID(params.AttackerIDPrefix),
		ParentID:     chain.StringPtr(parent.ID),
		Index:        tmpl.Index,
		Timestamp:    tmpl.Timestamp,
		Transactions: tmpl.Transactions,
		Nonce:        res.Nonce,
		PreviousHash: tmpl.PreviousHash,
		Difficulty:   tmpl.Difficulty,
		Hash:         res.Hash,
		IsAttacker:   true,
	}
	if err := a.session.AppendBlock(b); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.tip = b.ID
	a.mu.Unlock()
	a.blocks.Add(1)
	a.metrics.blockMined("attacker")
	a.logger.Info("attacker block",
		zap.String("id", b.ID),
		zap.Int64("index", b.Index),
		zap.Bool("longest", a.session.View().LongestTip == b.ID),
	)
	return b, nil
}

// Stop cancels the attack loop and waits for it to exit.
func (a *Attacker) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	a.miner.Stop()
	<-done
	a.logger.Info("attack stopped", zap.Int64("blocks", a.blocks.Load()))
}

// Running reports whether the attack loop is active.
func (a *Attacker) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Status returns a snapshot of the attacker's state.
func (a *Attacker) Status() AttackStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AttackStatus{
		Running:    a.cancel != nil,
		Power:      a.Power(),
		ForkBase:   a.forkBase,
		Tip:        a.tip,
		Blocks:     a.blocks.Load(),
		DelayMS:    a.Delay().Milliseconds(),
		Difficulty: a.Difficulty(),
	}
}
