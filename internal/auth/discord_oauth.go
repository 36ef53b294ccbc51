package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultDiscordAuthURL   = "https://discord.com/api/oauth2/authorize"
	defaultDiscordTokenURL  = "https://discord.com/api/oauth2/token"
	defaultDiscordUserURL   = "https://discord.com/api/users/@me"
	defaultDiscordGuildsURL = "https://discord.com/api/users/@me/guilds"
)

// DiscordOAuthConfig はDiscord OAuthプロバイダーの設定。
type DiscordOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration

	// テスト用にオーバーライド可能なURL
	AuthURL   string
	TokenURL  string
	UserURL   string
	GuildsURL string
}

// DiscordOAuthProvider はDiscord OAuth 2.0による認証を提供する。
type DiscordOAuthProvider struct {
	config DiscordOAuthConfig
	client *http.Client
}

// NewDiscordOAuthProvider はDiscordOAuthProviderを生成する。
func NewDiscordOAuthProvider(config DiscordOAuthConfig) *DiscordOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultDiscordUserURL
	}
	if config.GuildsURL == "" {
		config.GuildsURL = defaultDiscordGuildsURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &DiscordOAuthProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// GetLoginURL はDiscord OAuthの認証URLを生成する。
// ギルド所属の確認が必要なため、スコープにはidentifyに加えguildsを含む。
func (p *DiscordOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"identify guilds"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// discordTokenResponse はDiscordのトークンエンドポイントのレスポンス。
type discordTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// discordUser はDiscordの /users/@me エンドポイントのレスポンス。
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// discordGuild はDiscordの /users/@me/guilds エンドポイントの1エントリ。
type discordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報と
// 所属ギルドID一覧を取得する。レスポンスが期待する形でない場合は
// 失敗として扱う（fail closed）。
func (p *DiscordOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	// 1. 認可コードをアクセストークンに交換
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	user, err := p.fetchUser(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	// 3. 所属ギルド一覧を取得
	guildIDs, err := p.fetchGuildIDs(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guilds: %w", err)
	}

	avatar := user.Avatar
	return &OAuthUserInfo{
		DiscordID: user.ID,
		Username:  user.Username,
		Avatar:    avatar,
		GuildIDs:  guildIDs,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
// Discordのトークンエンドポイントはフォームエンコードのみ受け付ける。
func (p *DiscordOAuthProvider) exchangeToken(ctx context.Context, code string) (*discordTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp discordTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" || tokenResp.TokenType == "" {
		return nil, fmt.Errorf("malformed token response")
	}

	return &tokenResp, nil
}

// fetchUser はアクセストークンでDiscordのユーザー情報を取得する。
func (p *DiscordOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*discordUser, error) {
	body, err := p.getWithBearer(ctx, p.config.UserURL, accessToken)
	if err != nil {
		return nil, err
	}

	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	if user.ID == "" || user.Username == "" {
		return nil, fmt.Errorf("malformed user response")
	}

	return &user, nil
}

// fetchGuildIDs はアクセストークンで所属ギルドのID一覧を取得する。
func (p *DiscordOAuthProvider) fetchGuildIDs(ctx context.Context, accessToken string) ([]string, error) {
	body, err := p.getWithBearer(ctx, p.config.GuildsURL, accessToken)
	if err != nil {
		return nil, err
	}

	var guilds []discordGuild
	if err := json.Unmarshal(body, &guilds); err != nil {
		return nil, fmt.Errorf("failed to parse guilds response: %w", err)
	}

	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		if g.ID == "" {
			return nil, fmt.Errorf("malformed guilds response")
		}
		ids = append(ids, g.ID)
	}

	return ids, nil
}

// getWithBearer はBearerトークン付きのGETリクエストを実行しボディを返す。
func (p *DiscordOAuthProvider) getWithBearer(ctx context.Context, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to %s failed with status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	return body, nil
}

// compile-time interface check
var _ OAuthProvider = (*DiscordOAuthProvider)(nil)
