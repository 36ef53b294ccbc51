// Package auth はDiscord OAuth認証フローとセッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bunny-plus/backend/internal/model"
	"github.com/bunny-plus/backend/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	DiscordID string
	Username  string
	Avatar    string
	GuildIDs  []string // ユーザーが所属するギルドのID一覧
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// テスト時にDiscord APIをモックするための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報と所属ギルドを取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// RequiredGuildID はログインを許可するDiscordギルドのID。
	RequiredGuildID string
	// SessionMaxAge はセッションの有効期間。
	SessionMaxAge time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time // テスト用フック
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 指定ギルドに所属していないユーザーはユーザー作成もセッション発行も行わず拒否する。
// ギルド確認を通過した場合のみユーザーをupsertし（既存ユーザーの残高と進捗は保持）、
// 新しいセッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	if code == "" {
		return nil, nil, model.NewOAuthFailedError()
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報と所属ギルドを取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.String("error", err.Error()))
		return nil, nil, model.NewOAuthFailedError()
	}

	// 2. ギルド所属を確認。不所属の場合はここで打ち切り、状態を一切変更しない
	if !containsGuild(userInfo.GuildIDs, s.config.RequiredGuildID) {
		slog.Info("login rejected: not a guild member",
			slog.String("discord_id", userInfo.DiscordID),
		)
		return nil, nil, model.NewGuildUnauthorizedError()
	}

	// 3. ユーザーをupsert（新規は初期残高で作成、既存はプロフィールのみ更新）
	user, err := s.userRepo.Upsert(ctx, userInfo.DiscordID, userInfo.Username, userInfo.Avatar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("discord_id", user.DiscordID),
		slog.String("username", user.Username),
	)

	return session, user, nil
}

// Logout はセッションを破棄する。存在しないセッションIDでもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetSession はセッションIDから有効なセッションを取得する。
// 見つからない・期限切れの場合はnilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効、またはユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewUserNotFoundError()
	}

	user, err := s.userRepo.FindByDiscordID(ctx, session.DiscordID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, user *model.User) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		DiscordID: user.DiscordID,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// containsGuild はギルドID一覧に指定IDが含まれるかを返す。
func containsGuild(guildIDs []string, guildID string) bool {
	for _, id := range guildIDs {
		if id == guildID {
			return true
		}
	}
	return false
}
