package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// --- MemoryHeartbeatStore ---

func TestMemoryHeartbeatStore_BeatAndActiveIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHeartbeatStore(10 * time.Second)

	if err := store.Beat(ctx, "user-a"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}
	if err := store.Beat(ctx, "user-b"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}

	active, err := store.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs() error = %v", err)
	}
	if len(active) != 2 || !active["user-a"] || !active["user-b"] {
		t.Errorf("active = %v, want user-a and user-b", active)
	}
}

func TestMemoryHeartbeatStore_ExpiredBeatsAreDropped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHeartbeatStore(10 * time.Second)

	base := time.Now()
	store.now = func() time.Time { return base }

	if err := store.Beat(ctx, "user-old"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}

	// 11秒後: TTL(10秒)を過ぎた記録は無効
	store.now = func() time.Time { return base.Add(11 * time.Second) }
	if err := store.Beat(ctx, "user-fresh"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}

	active, err := store.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs() error = %v", err)
	}
	if active["user-old"] {
		t.Error("expired heartbeat should not be active")
	}
	if !active["user-fresh"] {
		t.Error("fresh heartbeat should be active")
	}
}

func TestMemoryHeartbeatStore_BeatRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHeartbeatStore(10 * time.Second)

	base := time.Now()
	store.now = func() time.Time { return base }
	store.Beat(ctx, "user-a")

	// 8秒後に再ハートビート
	store.now = func() time.Time { return base.Add(8 * time.Second) }
	store.Beat(ctx, "user-a")

	// 最初のビートから15秒後でも、8秒時点のビートはTTL内
	store.now = func() time.Time { return base.Add(15 * time.Second) }
	active, _ := store.ActiveIDs(ctx)
	if !active["user-a"] {
		t.Error("refreshed heartbeat should still be active")
	}
}

func TestMemoryHeartbeatStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHeartbeatStore(10 * time.Second)

	store.Beat(ctx, "user-a")
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	active, _ := store.ActiveIDs(ctx)
	if len(active) != 0 {
		t.Errorf("active after clear = %v, want empty", active)
	}
}

// --- RedisHeartbeatStore ---

func newTestRedisStore(t *testing.T, ttl time.Duration) *RedisHeartbeatStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisHeartbeatStore(client, ttl)
}

func TestRedisHeartbeatStore_BeatAndActiveIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t, 10*time.Second)

	if err := store.Beat(ctx, "user-a"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}
	if err := store.Beat(ctx, "user-b"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}

	active, err := store.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs() error = %v", err)
	}
	if len(active) != 2 || !active["user-a"] || !active["user-b"] {
		t.Errorf("active = %v, want user-a and user-b", active)
	}
}

func TestRedisHeartbeatStore_ExpiredBeatsAreDropped(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t, 10*time.Second)

	base := time.Now()
	store.now = func() time.Time { return base }
	if err := store.Beat(ctx, "user-old"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(11 * time.Second) }
	if err := store.Beat(ctx, "user-fresh"); err != nil {
		t.Fatalf("Beat() error = %v", err)
	}

	active, err := store.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs() error = %v", err)
	}
	if active["user-old"] {
		t.Error("expired heartbeat should not be active")
	}
	if !active["user-fresh"] {
		t.Error("fresh heartbeat should be active")
	}
}

func TestRedisHeartbeatStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t, 10*time.Second)

	store.Beat(ctx, "user-a")
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	active, _ := store.ActiveIDs(ctx)
	if len(active) != 0 {
		t.Errorf("active after clear = %v, want empty", active)
	}
}
