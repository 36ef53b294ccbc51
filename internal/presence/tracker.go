package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/bunny-plus/backend/internal/model"
	"github.com/bunny-plus/backend/internal/repository"
)

// 購読者ごとの送信バッファ。書き込みが追いつかない購読者へのメッセージは
// ブロックせずに破棄する。
const subscriberBufferSize = 8

// snapshotTimeout はオンラインスナップショット構築1回あたりの上限時間。
const snapshotTimeout = 3 * time.Second

// MessageTypeOnlineUsers は配信メッセージのtypeフィールド値。
const MessageTypeOnlineUsers = "online_users"

// OnlineUsersMessage はWebSocketで配信するオンラインユーザー一覧。
type OnlineUsersMessage struct {
	Type  string              `json:"type"`
	Users []*model.OnlineUser `json:"users"`
}

// Subscriber はオンラインユーザー配信の購読者を表す。
type Subscriber struct {
	discordID string
	send      chan []byte
}

// DiscordID は購読者のユーザーIDを返す。
func (s *Subscriber) DiscordID() string {
	return s.discordID
}

// Messages は配信メッセージの受信チャネルを返す。
// 購読解除時にクローズされる。
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Tracker はオンラインユーザーの定期配信を管理する。
// 購読者が1人以上いる間だけ配信ループを動かし、購読者が0になったら
// ループを止めてハートビート記録を破棄する。
type Tracker struct {
	repo     repository.PresenceRepository
	hearts   HeartbeatStore
	interval time.Duration

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
	stop chan struct{}

	observer BroadcastObserver
}

// BroadcastObserver は配信スナップショット構築のレイテンシ計測先。
type BroadcastObserver interface {
	RecordBroadcastLatency(duration time.Duration)
}

// NewTracker はTrackerを生成する。
func NewTracker(repo repository.PresenceRepository, hearts HeartbeatStore, interval time.Duration) *Tracker {
	return &Tracker{
		repo:     repo,
		hearts:   hearts,
		interval: interval,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// SetObserver は配信レイテンシの計測先を設定する。
func (t *Tracker) SetObserver(o BroadcastObserver) {
	t.observer = o
}

// Subscribe は配信の購読を開始する。最初の購読者で配信ループが起動する。
// 購読直後に最新のスナップショットが即時配信される。
func (t *Tracker) Subscribe(discordID string) *Subscriber {
	sub := &Subscriber{
		discordID: discordID,
		send:      make(chan []byte, subscriberBufferSize),
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	if t.stop == nil {
		t.stop = make(chan struct{})
		go t.loop(t.stop)
	}
	t.mu.Unlock()

	slog.Info("presence subscriber added",
		slog.String("discord_id", discordID),
		slog.Int("subscribers", t.Count()),
	)

	// 接続直後に現在の状態を配信する
	t.broadcast()

	return sub
}

// Unsubscribe は購読を解除する。最後の購読者が抜けたら配信ループを止め、
// ハートビート記録を破棄する。残った購読者には切断を反映した
// スナップショットが即時配信される。
func (t *Tracker) Unsubscribe(sub *Subscriber) {
	t.mu.Lock()
	if _, ok := t.subs[sub]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.subs, sub)
	close(sub.send)

	var stopped bool
	if len(t.subs) == 0 && t.stop != nil {
		close(t.stop)
		t.stop = nil
		stopped = true
	}
	t.mu.Unlock()

	slog.Info("presence subscriber removed",
		slog.String("discord_id", sub.discordID),
		slog.Int("subscribers", t.Count()),
	)

	if stopped {
		// 次のセッションに前回のハートビートが残らないようにする
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if err := t.hearts.Clear(ctx); err != nil {
			slog.Warn("failed to clear heartbeats", slog.String("error", err.Error()))
		}
		return
	}

	t.broadcast()
}

// Heartbeat は指定ユーザーのハートビート受信を記録する。
func (t *Tracker) Heartbeat(ctx context.Context, discordID string) error {
	return t.hearts.Beat(ctx, discordID)
}

// Count は現在の購読者数を返す。
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// loop は定期配信ループ。stopがクローズされるまでintervalごとに配信する。
func (t *Tracker) loop(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.broadcast()
		case <-stop:
			return
		}
	}
}

// broadcast は現在のオンラインスナップショットを全購読者に配信する。
// スナップショット構築に失敗した場合はログに記録し、次の周期に任せる。
func (t *Tracker) broadcast() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	start := time.Now()
	data, err := t.snapshot(ctx)
	if err != nil {
		slog.Error("failed to build presence snapshot", slog.String("error", err.Error()))
		return
	}
	if t.observer != nil {
		t.observer.RecordBroadcastLatency(time.Since(start))
	}

	// 送信はすべて非ブロッキングなので、ロックを保持したまま配って
	// クローズ済みチャネルへの送信を防ぐ
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.send <- data:
		default:
			// バッファが一杯の購読者には配信をスキップする
		}
	}
}

// snapshot はオンラインユーザー一覧のJSONペイロードを構築する。
// 有効なセッションを持ち、かつTTL内のハートビートを送っている
// ユーザーのみを含む。
func (t *Tracker) snapshot(ctx context.Context) ([]byte, error) {
	users, err := t.repo.ListOnlineUsers(ctx)
	if err != nil {
		return nil, err
	}

	active, err := t.hearts.ActiveIDs(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*model.OnlineUser, 0, len(users))
	for _, u := range users {
		if active[u.DiscordID] {
			filtered = append(filtered, u)
		}
	}

	return json.Marshal(OnlineUsersMessage{
		Type:  MessageTypeOnlineUsers,
		Users: filtered,
	})
}
