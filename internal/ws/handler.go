// Package ws はオンラインユーザー配信のWebSocketエンドポイントを提供する。
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/bunny-plus/backend/internal/metrics"
	"github.com/bunny-plus/backend/internal/middleware"
	"github.com/bunny-plus/backend/internal/presence"
)

// writeTimeout は1回の書き込みの上限時間。
const writeTimeout = 5 * time.Second

// maxMessageSize はクライアントからの受信メッセージの上限バイト数。
// ハートビートしか受け付けないため小さくてよい。
const maxMessageSize = 512

// clientMessage はクライアントから受信するメッセージ。
// 現在はハートビートのみをサポートする。
type clientMessage struct {
	Type      string `json:"type"`
	DiscordID string `json:"discordId"`
}

// messageTypeHeartbeat はクライアントからのハートビートのtypeフィールド値。
const messageTypeHeartbeat = "heartbeat"

// Handler はWebSocketのアップグレードとクライアントごとの送受信ループを処理する。
type Handler struct {
	tracker        *presence.Tracker
	metrics        metrics.MetricsCollector
	originPatterns []string
}

// NewHandler はWebSocket Handlerを生成する。
// originPatternsにはハンドシェイクで許可するOriginのホストパターンを指定する。
func NewHandler(tracker *presence.Tracker, collector metrics.MetricsCollector, originPatterns []string) *Handler {
	return &Handler{
		tracker:        tracker,
		metrics:        collector,
		originPatterns: originPatterns,
	}
}

// ServeHTTP はHTTP接続をWebSocketにアップグレードし、配信の購読を開始する。
// セッションミドルウェアを通過した認証済みリクエストのみを受け付ける。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	discordID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	conn.SetReadLimit(maxMessageSize)

	sub := h.tracker.Subscribe(discordID)
	defer h.tracker.Unsubscribe(sub)

	if h.metrics != nil {
		h.metrics.RecordWSConnect()
		defer h.metrics.RecordWSDisconnect()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 配信メッセージをWebSocketへ流す書き込みループ
	go h.writePump(ctx, cancel, conn, sub)

	h.readLoop(ctx, conn, discordID)
}

// writePump は購読チャネルのメッセージを接続へ書き込む。
// 書き込み失敗時は接続全体を終了させる。
func (h *Handler) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *presence.Subscriber) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.Messages():
			if !ok {
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				slog.Debug("websocket write failed",
					slog.String("discord_id", sub.DiscordID()),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// readLoop はクライアントからのメッセージを接続が閉じるまで読み続ける。
// ハートビートは認証済みユーザーIDに対して記録する。メッセージ中の
// discordIdフィールドは参考情報として扱い、信用しない。
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, discordID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// 正常クローズまたはコンテキストのキャンセル
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Type != messageTypeHeartbeat {
			continue
		}

		if err := h.tracker.Heartbeat(ctx, discordID); err != nil {
			slog.Warn("failed to record heartbeat",
				slog.String("discord_id", discordID),
				slog.String("error", err.Error()),
			)
		}
	}
}
