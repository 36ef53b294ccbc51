package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// heartbeatKey はハートビート記録を保持するソート済みセットのキー。
const heartbeatKey = "presence:heartbeats"

// RedisHeartbeatStore はRedisのソート済みセットを使うHeartbeatStore実装。
// 複数プロセスでサーバーを動かす場合に使用する。スコアにはハートビート
// 受信時刻のUNIX秒（ナノ秒精度）を格納する。
type RedisHeartbeatStore struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time // テスト用フック
}

// NewRedisHeartbeatStore はRedisHeartbeatStoreを生成する。
func NewRedisHeartbeatStore(client redis.Cmdable, ttl time.Duration) *RedisHeartbeatStore {
	return &RedisHeartbeatStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Beat は指定ユーザーのハートビート受信を記録する。
func (s *RedisHeartbeatStore) Beat(ctx context.Context, discordID string) error {
	score := float64(s.now().UnixNano()) / float64(time.Second)
	err := s.client.ZAdd(ctx, heartbeatKey, redis.Z{
		Score:  score,
		Member: discordID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// ActiveIDs はTTL内のハートビートを持つユーザーのID集合を返す。
// 期限切れのエントリはこのときにセットから削除される。
func (s *RedisHeartbeatStore) ActiveIDs(ctx context.Context) (map[string]bool, error) {
	cutoff := float64(s.now().Add(-s.ttl).UnixNano()) / float64(time.Second)

	if err := s.client.ZRemRangeByScore(ctx, heartbeatKey, "-inf", fmt.Sprintf("%f", cutoff)).Err(); err != nil {
		return nil, fmt.Errorf("failed to trim expired heartbeats: %w", err)
	}

	ids, err := s.client.ZRange(ctx, heartbeatKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read heartbeats: %w", err)
	}

	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		active[id] = true
	}
	return active, nil
}

// Clear はすべてのハートビート記録を破棄する。
func (s *RedisHeartbeatStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, heartbeatKey).Err(); err != nil {
		return fmt.Errorf("failed to clear heartbeats: %w", err)
	}
	return nil
}

var _ HeartbeatStore = (*RedisHeartbeatStore)(nil)
