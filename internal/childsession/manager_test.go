package childsession

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/oriys/dapbridge/internal/dapwire"
)

func newPipeClient(t *testing.T) *dapwire.Client {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return dapwire.New(a, nil)
}

func TestAdoptLatestWins(t *testing.T) {
	m := NewManager()

	first := m.Adopt("c1", newPipeClient(t))
	if active, ok := m.Active(); !ok || active != first {
		t.Fatal("expected first child to be active")
	}

	second := m.Adopt("c2", newPipeClient(t))
	if active, ok := m.Active(); !ok || active != second {
		t.Fatal("expected the newest child to supersede the active pointer")
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 tracked children, got %d", m.Count())
	}
}

func TestRemoveFallsBackToMostRecentRemaining(t *testing.T) {
	m := NewManager()
	first := m.Adopt("c1", newPipeClient(t))
	time.Sleep(time.Millisecond) // CreatedAt 需要可区分
	m.Adopt("c2", newPipeClient(t))

	m.Remove("c2")
	if active, ok := m.Active(); !ok || active != first {
		t.Fatal("expected active pointer to fall back to the remaining child")
	}

	m.Remove("c1")
	if _, ok := m.Active(); ok {
		t.Fatal("expected no active child after removing everything")
	}
}

func TestWaitActiveReady(t *testing.T) {
	m := NewManager()
	child := m.Adopt("c1", newPipeClient(t))

	go func() {
		time.Sleep(30 * time.Millisecond)
		child.MarkReady()
	}()

	ctx := context.Background()
	ready, ok := m.WaitActiveReady(ctx, time.Second)
	if !ok || ready != child {
		t.Fatal("expected WaitActiveReady to observe the child becoming ready")
	}
}

func TestWaitActiveReadyTimesOut(t *testing.T) {
	m := NewManager()
	m.Adopt("c1", newPipeClient(t))

	start := time.Now()
	if _, ok := m.WaitActiveReady(context.Background(), 60*time.Millisecond); ok {
		t.Fatal("expected timeout for a child that never becomes ready")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("WaitActiveReady overshot its window: %v", elapsed)
	}
}

func TestCloseAllClearsEverything(t *testing.T) {
	m := NewManager()
	m.Adopt("c1", newPipeClient(t))
	m.Adopt("c2", newPipeClient(t))

	m.CloseAll()
	if m.Count() != 0 {
		t.Fatalf("expected 0 children after CloseAll, got %d", m.Count())
	}
	if _, ok := m.Active(); ok {
		t.Fatal("expected no active child after CloseAll")
	}
}
