package store

import (
	"context"
	"testing"
	"time"
)

func TestGetOrCreateSession_CreatesThenReuses(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	created, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, time.Hour)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated session id")
	}

	fetched, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, time.Hour)
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("second call created a new session: %s vs %s", fetched.ID, created.ID)
	}
}

func TestGetOrCreateSession_ExtendsExpiryOnReuse(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	first, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, time.Minute)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	second, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, time.Hour)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expiry was not extended: first=%v second=%v", first.ExpiresAt, second.ExpiresAt)
	}
}

func TestMutateContext_PersistsUnderLock(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	locker := NewInProcessLocker()

	sess, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, time.Hour)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	err = s.MutateContext(ctx, locker, sess.ID, func(c map[string]any) error {
		c["topic"] = "billing"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	reloaded, err := s.findSession(ctx, "tenant-1", "participant-1", PlatformPage)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Context["topic"] != "billing" {
		t.Fatalf("context = %+v, want topic=billing", reloaded.Context)
	}
}

func TestAppendHistory_BoundsToMaxHistoryTurns(t *testing.T) {
	c := map[string]any{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MaxHistoryTurns+10; i++ {
		turn := HistoryTurn{Role: "user", Content: "message", TS: base.Add(time.Duration(i) * time.Second)}
		if err := AppendHistory(c, turn); err != nil {
			t.Fatalf("append history %d: %v", i, err)
		}
	}

	history, ok := c[historyKey].([]HistoryTurn)
	if !ok {
		t.Fatalf("history key is %T, want []HistoryTurn", c[historyKey])
	}
	if len(history) != MaxHistoryTurns {
		t.Fatalf("history length = %d, want %d", len(history), MaxHistoryTurns)
	}
	if history[0].TS.Equal(base) {
		t.Fatal("oldest turn was not trimmed")
	}
}

func TestExtendExpiry(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	sess, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, time.Minute)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	if err := s.ExtendExpiry(ctx, sess.ID, 24*time.Hour); err != nil {
		t.Fatalf("extend: %v", err)
	}

	reloaded, err := s.findSession(ctx, "tenant-1", "participant-1", PlatformPage)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ExpiresAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Fatalf("expiry not extended: %v", reloaded.ExpiresAt)
	}
}

func TestSweepExpired_RemovesPastExpiry(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	if _, err := s.GetOrCreateSession(ctx, "tenant-1", "participant-1", PlatformPage, -time.Hour); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	n, err := s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
}
