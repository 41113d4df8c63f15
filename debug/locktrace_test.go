package debug

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRWMutexTracingLogsAcquireAndRelease(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	SetTracing(true)
	defer SetTracing(false)

	m := NewRWMutex("session")
	m.Lock()
	m.Unlock()
	m.RLock()
	m.RUnlock()

	if got := logs.FilterMessage("lock acquired").Len(); got != 2 {
		t.Fatalf("acquire entries: got %d, want 2", got)
	}
	released := logs.FilterMessage("lock released").All()
	if len(released) != 1 {
		t.Fatalf("release entries: got %d, want 1", len(released))
	}
	if name := released[0].ContextMap()["lock"]; name != "session" {
		t.Fatalf("lock name: got %v, want session", name)
	}
}

func TestRWMutexUntracedIsSilent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	SetTracing(false)

	m := NewRWMutex("")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RLock()
			m.RUnlock()
		}()
	}
	wg.Wait()
	m.Lock()
	m.Unlock()

	if logs.Len() != 0 {
		t.Fatalf("expected no log entries, got %d", logs.Len())
	}
}
