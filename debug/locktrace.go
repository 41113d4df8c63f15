// Package debug holds opt-in diagnostics for the simulator.
package debug

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Lock tracing logs how long callers wait for (and hold) the session lock.
// It is off unless enabled through the environment:
//
//	BLOCKSIM_LOCK_TRACE=1
//	BLOCKSIM_LOCK_TRACE_MIN_WAIT_MS=<n>   only log waits >= n ms
//	BLOCKSIM_LOCK_TRACE_MIN_HOLD_MS=<n>   only log exclusive holds >= n ms
//
// Read-lock hold time is not tracked since readers overlap.

const envPrefix = "BLOCKSIM_LOCK_TRACE"

var (
	traceEnabled atomic.Bool
	minWaitNS    atomic.Int64
	minHoldNS    atomic.Int64
	lockSeq      atomic.Uint64

	traceInitOnce sync.Once
)

func traceInit() {
	traceInitOnce.Do(func() {
		traceEnabled.Store(envBool(envPrefix, false))
		minWaitNS.Store(int64(time.Duration(max(envInt(envPrefix+"_MIN_WAIT_MS", 0), 0)) * time.Millisecond))
		minHoldNS.Store(int64(time.Duration(max(envInt(envPrefix+"_MIN_HOLD_MS", 0), 0)) * time.Millisecond))
	})
}

// SetTracing overrides the environment setting. Used by tests and by the
// --lock-trace flag.
func SetTracing(enabled bool) {
	traceInit()
	traceEnabled.Store(enabled)
}

// TracingEnabled reports whether lock tracing is on.
func TracingEnabled() bool {
	traceInit()
	return traceEnabled.Load()
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// callsite returns "dir/file.go:line" for the frame skip levels up.
func callsite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	parts := strings.Split(file, "/")
	if len(parts) >= 2 {
		file = parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return file + ":" + strconv.Itoa(line)
}

func logWait(name, mode string, seq uint64, wait time.Duration) {
	if int64(wait) < minWaitNS.Load() {
		return
	}
	zap.L().Debug("lock acquired",
		zap.String("lock", name),
		zap.String("mode", mode),
		zap.Uint64("seq", seq),
		zap.Duration("wait", wait.Truncate(time.Microsecond)),
		zap.String("at", callsite(3)),
	)
}

func logHold(name string, seq uint64, held time.Duration) {
	if int64(held) < minHoldNS.Load() {
		return
	}
	zap.L().Debug("lock released",
		zap.String("lock", name),
		zap.Uint64("seq", seq),
		zap.Duration("held", held.Truncate(time.Microsecond)),
		zap.String("at", callsite(3)),
	)
}

// RWMutex is a sync.RWMutex that can report contention.
type RWMutex struct {
	mu   sync.RWMutex
	name string

	acquiredNS atomic.Int64
	seq        atomic.Uint64
}

// NewRWMutex returns a named RWMutex.
func NewRWMutex(name string) *RWMutex {
	return &RWMutex{name: name}
}

func (m *RWMutex) Lock() {
	if !TracingEnabled() {
		m.mu.Lock()
		return
	}
	start := time.Now()
	m.mu.Lock()
	seq := lockSeq.Add(1)
	m.seq.Store(seq)
	m.acquiredNS.Store(time.Now().UnixNano())
	logWait(m.label(), "Lock", seq, time.Since(start))
}

func (m *RWMutex) Unlock() {
	if !TracingEnabled() {
		m.mu.Unlock()
		return
	}
	seq := m.seq.Load()
	acquired := m.acquiredNS.Load()
	m.mu.Unlock()
	logHold(m.label(), seq, time.Since(time.Unix(0, acquired)))
}

func (m *RWMutex) RLock() {
	if !TracingEnabled() {
		m.mu.RLock()
		return
	}
	start := time.Now()
	m.mu.RLock()
	logWait(m.label(), "RLock", 0, time.Since(start))
}

func (m *RWMutex) RUnlock() {
	m.mu.RUnlock()
}

func (m *RWMutex) label() string {
	if m.name == "" {
		return "(unnamed)"
	}
	return m.name
}
