// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/bunny-plus/backend/internal/model"
)

// リポジトリ層の番兵エラー。サービス層でAPIErrorに変換する。
var (
	// ErrUserNotFound は対象ユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientCurrency は残高不足により条件付きUPDATEが不成立だったことを示す。
	ErrInsufficientCurrency = errors.New("insufficient currency")
	// ErrEmptyRarityPool は抽選レアリティに該当するカードがカタログに存在しないことを示す。
	ErrEmptyRarityPool = errors.New("no card registered for rarity")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Upsert はユーザーを作成または更新する。
	// 未登録の場合は初期残高・onboarding=falseで作成し、
	// 登録済みの場合はusername/avatar/updated_atのみ更新する（残高と進捗は保持）。
	// INSERT ... ON CONFLICT DO UPDATE による単一の原子的操作で行う。
	Upsert(ctx context.Context, discordID, username, avatar string) (*model.User, error)

	// FindByDiscordID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByDiscordID(ctx context.Context, discordID string) (*model.User, error)

	// CompleteOnboarding はオンボーディング完了フラグを立てる。
	// すでに完了済み、またはユーザーが存在しない場合も冪等にOkを返す。
	CompleteOnboarding(ctx context.Context, discordID string) error

	// SpendCurrency は残高の条件付き減算を行う。
	// currency >= amount の検証と減算を単一のUPDATE文で行い、
	// 不成立の場合はErrInsufficientCurrency（ユーザー不在はErrUserNotFound）を返す。
	SpendCurrency(ctx context.Context, discordID string, amount int) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。
	// 見つからない場合はnilを返す。期限切れの場合は副作用として削除し、nilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。存在しないIDでもエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れ（expires_at < now）のセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// CardRepository はカードカタログと所有レコードの永続化インターフェース。
type CardRepository interface {
	// FindByID は指定IDのカードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.Card, error)

	// Draw は「残高減算 → 指定レアリティから一様ランダムに1枚選択 → 所有レコード追記」を
	// 単一トランザクションで実行する。いずれかのステップが失敗した場合は全体を
	// ロールバックし、通貨が消費されないことを保証する。
	// 残高不足はErrInsufficientCurrency、該当レアリティのカードが
	// 存在しない場合はErrEmptyRarityPoolを返す。
	Draw(ctx context.Context, discordID string, cost int, rarity model.Rarity) (*model.Card, error)

	// ListByOwner はユーザーが排出したカードを取得時刻の昇順で返す。重複を含む。
	ListByOwner(ctx context.Context, discordID string) ([]*model.Card, error)

	// UpsertCatalog はカードカタログを冪等に投入する。seedコマンドから使用する。
	UpsertCatalog(ctx context.Context, cards []*model.Card) error
}

// PresenceRepository はプレゼンス配信用の読み取り専用集計インターフェース。
type PresenceRepository interface {
	// ListOnlineUsers は有効なセッション（expires_at > now）を1つ以上持つ
	// ユーザーの一覧を、現在の残高とレアリティ別所有枚数付きで返す。
	ListOnlineUsers(ctx context.Context) ([]*model.OnlineUser, error)
}
