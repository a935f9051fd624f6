package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dc-codes426/newsapi-ai/internal/llm"
)

func userTurn(content string) Turn {
	return FromMessage(llm.Message{Role: llm.RoleUser, Content: content})
}

func TestMemoryStoreCreatesUnderGivenID(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "abc-123")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID != "abc-123" {
		t.Fatalf("expected session id abc-123, got %s", sess.ID)
	}
	if len(sess.Turns) != 0 {
		t.Fatalf("new session should be empty, got %d turns", len(sess.Turns))
	}
}

func TestMemoryStoreMintsIDWhenEmpty(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	sess, err := store.GetOrCreate(context.Background(), "")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a minted session id")
	}
}

func TestMemoryStoreAppendOrder(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	if _, err := store.GetOrCreate(ctx, "s1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := store.AppendTurns(ctx, "s1", userTurn("first"), userTurn("second")); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	if err := store.AppendTurns(ctx, "s1", userTurn("third")); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}

	sess, err := store.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	got := sess.Messages()
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("turn %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
}

func TestMemoryStoreSnapshotIsDetached(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	if err := store.AppendTurns(ctx, "s1", userTurn("original")); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	snap, err := store.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	snap.Turns[0].Content = "mutated"

	again, err := store.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if again.Turns[0].Content != "original" {
		t.Fatalf("snapshot mutation leaked into the store: %q", again.Turns[0].Content)
	}
}

func TestMemoryStoreSweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	if _, err := store.GetOrCreate(ctx, "stale"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := store.GetOrCreate(ctx, ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", removed)
	}
}

func TestMemoryStoreExpiredIDGetsFreshSession(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	if err := store.AppendTurns(ctx, "s1", userTurn("old")); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	sess, err := store.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(sess.Turns) != 0 {
		t.Fatalf("expired session should restart empty, got %d turns", len(sess.Turns))
	}
}

func TestLocksSerializePerID(t *testing.T) {
	locks := NewLocks()

	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	release := locks.Acquire("s1")
	done := make(chan struct{})
	go func() {
		rel := locks.Acquire("s1")
		record("second-acquired")
		rel()
		close(done)
	}()

	// Unrelated session must not block.
	other := locks.Acquire("s2")
	other()

	time.Sleep(20 * time.Millisecond)
	record("first-released")
	release()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "first-released" || events[1] != "second-acquired" {
		t.Fatalf("unexpected ordering: %v", events)
	}
}

func TestLocksEntryFreedWhenIdle(t *testing.T) {
	locks := NewLocks()
	release := locks.Acquire("s1")
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.entries) != 0 {
		t.Fatalf("expected lock map to be empty, has %d entries", len(locks.entries))
	}
}

func TestJanitorRejectsBadSpec(t *testing.T) {
	if _, err := NewJanitor(NewMemoryStore(time.Minute), "not a cron", nil); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestJanitorDefaultsToHourly(t *testing.T) {
	j, err := NewJanitor(NewMemoryStore(time.Minute), "", nil)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	if j.Spec != "@hourly" {
		t.Fatalf("expected default @hourly, got %s", j.Spec)
	}
}
