// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, card, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeOAuthFailed       = "OAUTH_FAILED"
	ErrCodeGuildUnauthorized = "GUILD_UNAUTHORIZED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeCardNotFound      = "CARD_NOT_FOUND"
	ErrCodeNotEnoughCurrency = "NOT_ENOUGH_CURRENCY"
	ErrCodeEmptyRarityPool   = "EMPTY_RARITY_POOL"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// NewOAuthFailedError はOAuth認証失敗エラーを生成する。
// ネットワーク障害・不正レスポンスの詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度ログインをお試しください。",
	}
}

// NewGuildUnauthorizedError はギルドメンバーシップ要件を満たさない場合のエラーを生成する。
func NewGuildUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeGuildUnauthorized,
		Message:  "このサービスを利用するには指定のDiscordサーバーへの参加が必要です。",
		Category: "auth",
		Action:   "対象サーバーに参加してから再度ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCardNotFoundError はカードが見つからない場合のエラーを生成する。
func NewCardNotFoundError(cardID int) *APIError {
	return &APIError{
		Code:     ErrCodeCardNotFound,
		Message:  fmt.Sprintf("指定されたカードが見つかりません: %d", cardID),
		Category: "card",
		Action:   "カードIDを確認してください。",
	}
}

// NewNotEnoughCurrencyError は通貨残高不足エラーを生成する。
// 残高は減算されていないことが保証される。
func NewNotEnoughCurrencyError() *APIError {
	return &APIError{
		Code:     ErrCodeNotEnoughCurrency,
		Message:  "にんじんが足りません。",
		Category: "card",
		Action:   "にんじんを獲得してから再度お試しください。",
	}
}

// NewEmptyRarityPoolError は抽選されたレアリティにカードが存在しない場合のエラーを生成する。
// この場合、通貨は消費されない（トランザクションごとロールバックされる）。
func NewEmptyRarityPoolError(rarity Rarity) *APIError {
	return &APIError{
		Code:     ErrCodeEmptyRarityPool,
		Message:  fmt.Sprintf("レアリティ %s のカードが登録されていません。", rarity),
		Category: "card",
		Action:   "カードカタログのseedを実行してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("不正なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
