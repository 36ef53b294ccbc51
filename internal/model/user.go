// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Discordの外部IDをキーとし、通貨残高とオンボーディング進捗を保持する。
type User struct {
	DiscordID  string
	Username   string
	Avatar     string // Discord CDNのアバターハッシュ。未設定の場合は空文字列。
	Currency   int    // 常に0以上。減算は条件付きUPDATEでのみ行う。
	Onboarding bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session はユーザーのログインセッションを表す。
// expires_atを過ぎたセッションは無効であり、次回lookup時に遅延削除される。
type Session struct {
	ID        string
	DiscordID string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Valid はセッションが指定時刻で有効かどうかを返す。
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
