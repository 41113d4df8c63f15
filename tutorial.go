package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Stage is a step of the guided tutorial.
type Stage int

const (
	StageCollectingInput Stage = iota
	StageHasTransaction
	StageHasMinedBlock
	StageHasTamperedBlock
	StageCompleted
)

var stageNames = [...]string{
	StageCollectingInput:  "CollectingInput",
	StageHasTransaction:   "HasTransaction",
	StageHasMinedBlock:    "HasMinedBlock",
	StageHasTamperedBlock: "HasTamperedBlock",
	StageCompleted:        "Completed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	st, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStage accepts a stage name, case-insensitively.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if strings.EqualFold(n, name) {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tutorial stage %q", name)
}

var (
	ErrStageSkipped     = errors.New("tutorial can only advance to the next stage")
	ErrGuardNotMet      = errors.New("tutorial stage requirements not met")
	ErrTutorialComplete = errors.New("tutorial already completed")
)

// TutorialProgress is everything the stage guards look at. All fields but
// HashExperiments come from ChainProgress.
type TutorialProgress struct {
	ChainProgress
	HashExperiments int `json:"hashExperiments"`
}

// stageGuards holds the predicate for entering each stage.
var stageGuards = map[Stage]func(TutorialProgress) bool{
	StageHasTransaction: func(p TutorialProgress) bool {
		return p.HashExperiments > 0 && (p.MempoolSize > 0 || p.MinedBlocks > 0)
	},
	StageHasMinedBlock: func(p TutorialProgress) bool {
		return p.MinedBlocks > 0
	},
	StageHasTamperedBlock: func(p TutorialProgress) bool {
		return p.BrokenBlocks > 0
	},
	StageCompleted: func(p TutorialProgress) bool {
		return p.BrokenBlocks > 0
	},
}

var stageHints = map[Stage]string{
	StageCollectingInput:  "Hash some text with 'hash <text>' and watch the digest change, then add a transaction with 'tx <from> <to> <amount>'.",
	StageHasTransaction:   "Mine a block with 'mine' to confirm your pending transactions.",
	StageHasMinedBlock:    "Change history with 'tamper <block> <tx#> <amount>' and check 'path'.",
	StageHasTamperedBlock: "Every block after the tampered one is now invalid. Advance to finish.",
	StageCompleted:        "Tutorial complete. Try 'attack start' to watch a 51% attack.",
}

// Tutorial is a forward-only state machine over the learner's progress.
// Guards read chain-derived counters; only the hash playground counter is
// tracked here.
type Tutorial struct {
	mu          sync.Mutex
	stage       Stage
	experiments int
}

// NewTutorial starts at StageCollectingInput.
func NewTutorial() *Tutorial {
	return &Tutorial{}
}

// HashText runs the hash playground and counts the experiment.
func (t *Tutorial) HashText(text string) string {
	t.mu.Lock()
	t.experiments++
	t.mu.Unlock()
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Stage returns the current stage.
func (t *Tutorial) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Hint describes what the learner should do in the current stage.
func (t *Tutorial) Hint() string {
	return stageHints[t.Stage()]
}

// Progress combines chain counters with the playground counter.
func (t *Tutorial) Progress(cp ChainProgress) TutorialProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TutorialProgress{ChainProgress: cp, HashExperiments: t.experiments}
}

// CanAdvance reports whether the next stage's guard holds.
func (t *Tutorial) CanAdvance(cp ChainProgress) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == StageCompleted {
		return false
	}
	next := t.stage + 1
	return stageGuards[next](TutorialProgress{ChainProgress: cp, HashExperiments: t.experiments})
}

// Advance moves to stage to. Only the immediate next stage is accepted and
// only when its guard holds.
func (t *Tutorial) Advance(to Stage, cp ChainProgress) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stage == StageCompleted {
		return ErrTutorialComplete
	}
	if to != t.stage+1 {
		return fmt.Errorf("%w: %s -> %s", ErrStageSkipped, t.stage, to)
	}
	p := TutorialProgress{ChainProgress: cp, HashExperiments: t.experiments}
	if !stageGuards[to](p) {
		return fmt.Errorf("%w: %s", ErrGuardNotMet, to)
	}
	t.stage = to
	return nil
}

// Next advances one stage.
func (t *Tutorial) Next(cp ChainProgress) (Stage, error) {
	cur := t.Stage()
	if err := t.Advance(cur+1, cp); err != nil {
		return cur, err
	}
	return cur + 1, nil
}

// Reset returns to the first stage and clears the playground counter.
func (t *Tutorial) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = StageCollectingInput
	t.experiments = 0
}
