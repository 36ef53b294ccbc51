package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bunny-plus/backend/internal/model"
	"github.com/bunny-plus/backend/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	upsertFn              func(ctx context.Context, discordID, username, avatar string) (*model.User, error)
	findByDiscordIDFn     func(ctx context.Context, discordID string) (*model.User, error)
	completeOnboardingFn  func(ctx context.Context, discordID string) error
	spendCurrencyFn       func(ctx context.Context, discordID string, amount int) (*model.User, error)
}

func (m *mockUserRepo) Upsert(ctx context.Context, discordID, username, avatar string) (*model.User, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, discordID, username, avatar)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	if m.findByDiscordIDFn != nil {
		return m.findByDiscordIDFn(ctx, discordID)
	}
	return nil, nil
}

func (m *mockUserRepo) CompleteOnboarding(ctx context.Context, discordID string) error {
	if m.completeOnboardingFn != nil {
		return m.completeOnboardingFn(ctx, discordID)
	}
	return nil
}

func (m *mockUserRepo) SpendCurrency(ctx context.Context, discordID string, amount int) (*model.User, error) {
	if m.spendCurrencyFn != nil {
		return m.spendCurrencyFn(ctx, discordID, amount)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, session *model.Session) error
	findByIDFn      func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn    func(ctx context.Context, id string) error
	deleteExpiredFn func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

const testGuildID = "999888777666555444"

func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		RequiredGuildID: testGuildID,
		SessionMaxAge:   30 * 24 * time.Hour,
	}
}

// --- テスト ---

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	provider := &mockOAuthProvider{
		getLoginURLFn: func(state string) string {
			return "https://discord.com/api/oauth2/authorize?state=" + state
		},
	}
	svc := NewService(provider, nil, nil, testServiceConfig())

	url := svc.GetLoginURL("test-state")

	expected := "https://discord.com/api/oauth2/authorize?state=test-state"
	if url != expected {
		t.Errorf("GetLoginURL() = %q, want %q", url, expected)
	}
}

func TestHandleCallback_GuildMember_UpsertsUserAndCreatesSession(t *testing.T) {
	ctx := context.Background()

	var upsertedID, upsertedName string
	var createdSession *model.Session

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				DiscordID: "discord-user-123",
				Username:  "usagi",
				Avatar:    "a1b2c3",
				GuildIDs:  []string{"other-guild", testGuildID},
			}, nil
		},
	}

	userRepo := &mockUserRepo{
		upsertFn: func(ctx context.Context, discordID, username, avatar string) (*model.User, error) {
			upsertedID = discordID
			upsertedName = username
			return &model.User{
				DiscordID: discordID,
				Username:  username,
				Avatar:    avatar,
				Currency:  10,
			}, nil
		},
	}

	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(provider, userRepo, sessionRepo, testServiceConfig())

	session, user, err := svc.HandleCallback(ctx, "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if session == nil {
		t.Fatal("expected non-nil session")
	}
	if session.ID == "" {
		t.Error("expected non-empty session ID")
	}
	if session.DiscordID != "discord-user-123" {
		t.Errorf("session discordID = %q, want %q", session.DiscordID, "discord-user-123")
	}
	if user == nil || user.Currency != 10 {
		t.Errorf("expected user with starting currency, got %+v", user)
	}

	if upsertedID != "discord-user-123" || upsertedName != "usagi" {
		t.Errorf("Upsert called with (%q, %q)", upsertedID, upsertedName)
	}

	if createdSession == nil {
		t.Fatal("expected session to be persisted")
	}
	if createdSession.ExpiresAt.Before(time.Now()) {
		t.Error("session should not be expired")
	}
	// 有効期限がおよそ30日後であること
	wantExpiry := time.Now().Add(30 * 24 * time.Hour)
	if diff := createdSession.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("session expiry = %v, want ~%v", createdSession.ExpiresAt, wantExpiry)
	}
}

func TestHandleCallback_NotGuildMember_RejectsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				DiscordID: "discord-outsider",
				Username:  "stranger",
				GuildIDs:  []string{"unrelated-guild-1", "unrelated-guild-2"},
			}, nil
		},
	}

	userRepo := &mockUserRepo{
		upsertFn: func(ctx context.Context, discordID, username, avatar string) (*model.User, error) {
			t.Fatal("Upsert must not be called for non-members")
			return nil, nil
		},
	}

	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			t.Fatal("session must not be created for non-members")
			return nil
		},
	}

	svc := NewService(provider, userRepo, sessionRepo, testServiceConfig())

	_, _, err := svc.HandleCallback(ctx, "auth-code-outsider")
	if err == nil {
		t.Fatal("expected error for non-guild-member")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeGuildUnauthorized {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeGuildUnauthorized)
	}
}

func TestHandleCallback_OAuthError_ReturnsOAuthFailed(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return nil, errors.New("token exchange failed")
		},
	}

	svc := NewService(provider, nil, nil, testServiceConfig())

	_, _, err := svc.HandleCallback(ctx, "bad-code")
	if err == nil {
		t.Fatal("expected error from HandleCallback")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeOAuthFailed {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeOAuthFailed)
	}
}

func TestHandleCallback_EmptyCode_ReturnsOAuthFailed(t *testing.T) {
	ctx := context.Background()

	svc := NewService(nil, nil, nil, testServiceConfig())

	_, _, err := svc.HandleCallback(ctx, "")
	if err == nil {
		t.Fatal("expected error for empty code")
	}
}

func TestHandleCallback_UpsertError_ReturnsError(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				DiscordID: "discord-user-err",
				Username:  "usagi",
				GuildIDs:  []string{testGuildID},
			}, nil
		},
	}

	userRepo := &mockUserRepo{
		upsertFn: func(ctx context.Context, discordID, username, avatar string) (*model.User, error) {
			return nil, errors.New("db error")
		},
	}

	svc := NewService(provider, userRepo, nil, testServiceConfig())

	_, _, err := svc.HandleCallback(ctx, "auth-code-err")
	if err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	ctx := context.Background()

	var deletedSessionID string

	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedSessionID = id
			return nil
		},
	}

	svc := NewService(nil, nil, sessionRepo, testServiceConfig())

	if err := svc.Logout(ctx, "session-to-delete"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if deletedSessionID != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deletedSessionID, "session-to-delete")
	}
}

func TestLogout_EmptySessionID_IsNoOp(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Fatal("DeleteByID must not be called for empty session ID")
			return nil
		},
	}

	svc := NewService(nil, nil, sessionRepo, testServiceConfig())

	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{
				ID:        "session-valid",
				DiscordID: "discord-user-123",
				ExpiresAt: time.Now().Add(1 * time.Hour),
			}, nil
		},
	}

	userRepo := &mockUserRepo{
		findByDiscordIDFn: func(ctx context.Context, discordID string) (*model.User, error) {
			return &model.User{
				DiscordID: discordID,
				Username:  "usagi",
				Currency:  7,
			}, nil
		},
	}

	svc := NewService(nil, userRepo, sessionRepo, testServiceConfig())

	user, err := svc.GetCurrentUser(ctx, "session-valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}

	if user == nil {
		t.Fatal("expected non-nil user")
	}
	if user.DiscordID != "discord-user-123" {
		t.Errorf("user discordID = %q, want %q", user.DiscordID, "discord-user-123")
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsUserNotFound(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			// 期限切れセッション -> リポジトリはnilを返す
			return nil, nil
		},
	}

	svc := NewService(nil, nil, sessionRepo, testServiceConfig())

	_, err := svc.GetCurrentUser(ctx, "expired-session")
	if err == nil {
		t.Fatal("expected error for expired session")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

func TestGetCurrentUser_EmptySessionID_ReturnsError(t *testing.T) {
	ctx := context.Background()

	svc := NewService(nil, nil, nil, testServiceConfig())

	_, err := svc.GetCurrentUser(ctx, "")
	if err == nil {
		t.Fatal("expected error for empty session ID")
	}
}
