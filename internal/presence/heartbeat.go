// Package presence はオンラインユーザーの追跡とWebSocket配信を提供する。
package presence

import (
	"context"
	"sync"
	"time"
)

// HeartbeatStore はクライアントからのハートビート受信記録を保持する。
// TTLを過ぎた記録は無効として扱われる。
type HeartbeatStore interface {
	// Beat は指定ユーザーのハートビート受信を記録する。
	Beat(ctx context.Context, discordID string) error
	// ActiveIDs はTTL内にハートビートを送ったユーザーのID集合を返す。
	ActiveIDs(ctx context.Context) (map[string]bool, error)
	// Clear はすべてのハートビート記録を破棄する。購読者が0になったときに呼ばれる。
	Clear(ctx context.Context) error
}

// MemoryHeartbeatStore はインメモリのHeartbeatStore実装。
// 単一プロセス構成でのデフォルト。
type MemoryHeartbeatStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	beats map[string]time.Time
	now   func() time.Time // テスト用フック
}

// NewMemoryHeartbeatStore はMemoryHeartbeatStoreを生成する。
func NewMemoryHeartbeatStore(ttl time.Duration) *MemoryHeartbeatStore {
	return &MemoryHeartbeatStore{
		ttl:   ttl,
		beats: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Beat は指定ユーザーのハートビート受信時刻を記録する。
func (s *MemoryHeartbeatStore) Beat(_ context.Context, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats[discordID] = s.now()
	return nil
}

// ActiveIDs はTTL内のハートビートを持つユーザーのID集合を返す。
// 期限切れの記録はこのときに削除される。
func (s *MemoryHeartbeatStore) ActiveIDs(_ context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	active := make(map[string]bool, len(s.beats))
	for id, at := range s.beats {
		if at.Before(cutoff) {
			delete(s.beats, id)
			continue
		}
		active[id] = true
	}
	return active, nil
}

// Clear はすべてのハートビート記録を破棄する。
func (s *MemoryHeartbeatStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats = make(map[string]time.Time)
	return nil
}

var _ HeartbeatStore = (*MemoryHeartbeatStore)(nil)
