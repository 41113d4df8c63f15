package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blocknetprivacy/blocksim/debug"
)

// Daemon wires the simulator's components together. The interactive shell
// and the HTTP API both drive a Daemon.
type Daemon struct {
	// Core components
	session  *Session
	attacker *Attacker
	tutorial *Tutorial
	storage  *Storage
	metrics  *Metrics

	logger    *zap.Logger
	dataDir   string
	startTime time.Time

	// State
	ctx    context.Context
	cancel context.CancelFunc
}

// DaemonConfig configures the daemon
type DaemonConfig struct {
	// DataDir holds the snapshot database and API cookie
	DataDir string

	// Persist enables bbolt snapshots
	Persist bool

	// Difficulty for new sessions (ignored when a snapshot is restored)
	Difficulty int

	// AttackerPower is the attacker's share of hash power (%)
	AttackerPower int
}

// DefaultDaemonConfig returns sensible defaults
func DefaultDaemonConfig() DaemonConfig {
	d := DefaultConfig()
	return DaemonConfig{
		DataDir:       d.DataDir,
		Persist:       d.Persist,
		Difficulty:    d.Difficulty,
		AttackerPower: d.AttackerPower,
	}
}

// daemonConfigFrom extracts the daemon settings from the process config.
func daemonConfigFrom(cfg Config) DaemonConfig {
	return DaemonConfig{
		DataDir:       cfg.DataDir,
		Persist:       cfg.Persist,
		Difficulty:    cfg.Difficulty,
		AttackerPower: cfg.AttackerPower,
	}
}

// NewDaemon creates the session (restoring any snapshot) and its helpers.
func NewDaemon(cfg DaemonConfig, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	var storage *Storage
	if cfg.Persist {
		var err error
		storage, err = NewStorage(cfg.DataDir)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
	}

	metrics := NewMetrics()
	scfg := DefaultSessionConfig()
	scfg.Difficulty = cfg.Difficulty
	scfg.Storage = storage
	scfg.Logger = logger
	scfg.Metrics = metrics

	session, err := NewSession(scfg)
	if err != nil {
		cancel()
		if storage != nil {
			storage.Close()
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	attacker := NewAttacker(session, logger, metrics)
	if cfg.AttackerPower != 0 {
		if err := attacker.SetPower(cfg.AttackerPower); err != nil {
			cancel()
			if storage != nil {
				storage.Close()
			}
			return nil, err
		}
	}

	return &Daemon{
		session:   session,
		attacker:  attacker,
		tutorial:  NewTutorial(),
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		dataDir:   cfg.DataDir,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start logs the initial state. There is nothing to dial or sync.
func (d *Daemon) Start() error {
	v := d.session.View()
	d.logger.Info("daemon started",
		zap.String("data_dir", d.dataDir),
		zap.Bool("persist", d.storage != nil),
		zap.Int("blocks", v.BlockCount),
		zap.String("active_tip", v.ActiveTip),
		zap.Bool("valid", v.Result.Valid),
		zap.Int("difficulty", v.Difficulty),
		zap.Bool("lock_trace", debug.TracingEnabled()),
	)
	return nil
}

// Stop gracefully shuts down the daemon
func (d *Daemon) Stop() error {
	d.logger.Info("shutting down daemon")
	d.cancel()

	d.attacker.Stop()
	d.session.StopMining()

	var errs []error
	if d.storage != nil {
		if err := d.session.Save(); err != nil {
			errs = append(errs, fmt.Errorf("final save: %w", err))
		}
		if err := d.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Reset clears the chain and restarts the tutorial.
func (d *Daemon) Reset() {
	d.attacker.Stop()
	d.session.Reset()
	d.tutorial.Reset()
}

// DaemonStats summarizes the simulator for status displays.
type DaemonStats struct {
	Blocks       int          `json:"blocks"`
	Tips         int          `json:"tips"`
	ActiveTip    string       `json:"active_tip"`
	LongestTip   string       `json:"longest_tip"`
	ActiveHeight int64        `json:"active_height"`
	Valid        bool         `json:"valid"`
	FirstInvalid string       `json:"first_invalid,omitempty"`
	Difficulty   int          `json:"difficulty"`
	MempoolSize  int          `json:"mempool_size"`
	Mining       bool         `json:"mining"`
	HashRate     float64      `json:"hash_rate"`
	Miner        MinerStats   `json:"miner"`
	Attack       AttackStatus `json:"attack"`
	Tutorial     string       `json:"tutorial"`
	Persist      bool         `json:"persist"`
	Uptime       string       `json:"uptime"`
}

func (d *Daemon) Stats() DaemonStats {
	v := d.session.View()
	var height int64
	if b, ok := d.session.Block(v.ActiveTip); ok {
		height = b.Index
	}
	return DaemonStats{
		Blocks:       v.BlockCount,
		Tips:         len(d.session.Tips()),
		ActiveTip:    v.ActiveTip,
		LongestTip:   v.LongestTip,
		ActiveHeight: height,
		Valid:        v.Result.Valid,
		FirstInvalid: v.Result.FirstInvalidID,
		Difficulty:   v.Difficulty,
		MempoolSize:  v.MempoolSize,
		Mining:       d.session.Miner().IsRunning(),
		HashRate:     d.session.Miner().HashRate(),
		Miner:        d.session.Miner().Stats(),
		Attack:       d.attacker.Status(),
		Tutorial:     d.tutorial.Stage().String(),
		Persist:      d.storage != nil,
		Uptime:       time.Since(d.startTime).Round(time.Second).String(),
	}
}

// Getters for components
func (d *Daemon) Session() *Session        { return d.session }
func (d *Daemon) Attacker() *Attacker      { return d.attacker }
func (d *Daemon) Tutorial() *Tutorial      { return d.tutorial }
func (d *Daemon) Metrics() *Metrics        { return d.metrics }
func (d *Daemon) Context() context.Context { return d.ctx }
