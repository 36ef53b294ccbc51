package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDiscordOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/discord/callback",
	})

	url := provider.GetLoginURL("test-state-value")

	if url == "" {
		t.Fatal("expected non-empty URL")
	}

	// 基本的なパラメータの存在を確認
	tests := []struct {
		name     string
		contains string
	}{
		{"client_id", "client_id=test-client-id"},
		{"redirect_uri", "redirect_uri="},
		{"state", "state=test-state-value"},
		{"response_type", "response_type=code"},
		{"scope identify", "identify"},
		{"scope guilds", "guilds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(url, tt.contains) {
				t.Errorf("URL should contain %q, got %q", tt.contains, url)
			}
		})
	}
}

func TestDiscordOAuthProvider_ExchangeCode_Success(t *testing.T) {
	// Discord Token Endpoint
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// トークン交換はフォームエンコードであること
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected Content-Type: %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want %q", got, "authorization_code")
		}
		if got := r.PostForm.Get("code"); got != "test-auth-code" {
			t.Errorf("code = %q, want %q", got, "test-auth-code")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   604800,
			"scope":        "identify guilds",
		})
	}))
	defer tokenServer.Close()

	// Discord /users/@me Endpoint
	userServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", authHeader)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "111222333444555666",
			"username": "usagi",
			"avatar":   "a1b2c3d4",
		})
	}))
	defer userServer.Close()

	// Discord /users/@me/guilds Endpoint
	guildsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "999888777666555444", "name": "Bunny Server"},
			{"id": "123123123123123123", "name": "Other Server"},
		})
	}))
	defer guildsServer.Close()

	provider := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/discord/callback",
		TokenURL:     tokenServer.URL,
		UserURL:      userServer.URL,
		GuildsURL:    guildsServer.URL,
	})

	ctx := context.Background()
	userInfo, err := provider.ExchangeCode(ctx, "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if userInfo == nil {
		t.Fatal("expected non-nil user info")
	}
	if userInfo.DiscordID != "111222333444555666" {
		t.Errorf("discordID = %q, want %q", userInfo.DiscordID, "111222333444555666")
	}
	if userInfo.Username != "usagi" {
		t.Errorf("username = %q, want %q", userInfo.Username, "usagi")
	}
	if userInfo.Avatar != "a1b2c3d4" {
		t.Errorf("avatar = %q, want %q", userInfo.Avatar, "a1b2c3d4")
	}
	if len(userInfo.GuildIDs) != 2 {
		t.Fatalf("guildIDs length = %d, want 2", len(userInfo.GuildIDs))
	}
	if userInfo.GuildIDs[0] != "999888777666555444" {
		t.Errorf("guildIDs[0] = %q, want %q", userInfo.GuildIDs[0], "999888777666555444")
	}
}

func TestDiscordOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "invalid_grant",
		})
	}))
	defer tokenServer.Close()

	provider := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/discord/callback",
		TokenURL:     tokenServer.URL,
	})

	ctx := context.Background()
	_, err := provider.ExchangeCode(ctx, "redeemed-code")
	if err == nil {
		t.Fatal("expected error for token exchange failure")
	}
}

func TestDiscordOAuthProvider_ExchangeCode_MalformedTokenResponse(t *testing.T) {
	// access_tokenが欠けたレスポンスは形不正として拒否すること
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token_type": "Bearer",
		})
	}))
	defer tokenServer.Close()

	provider := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID: "test-client-id",
		TokenURL: tokenServer.URL,
	})

	ctx := context.Background()
	_, err := provider.ExchangeCode(ctx, "test-code")
	if err == nil {
		t.Fatal("expected error for malformed token response")
	}
}

func TestDiscordOAuthProvider_ExchangeCode_MalformedUserResponse(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
		})
	}))
	defer tokenServer.Close()

	// idが欠けたユーザーレスポンス
	userServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"username": "usagi",
		})
	}))
	defer userServer.Close()

	provider := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID: "test-client-id",
		TokenURL: tokenServer.URL,
		UserURL:  userServer.URL,
	})

	ctx := context.Background()
	_, err := provider.ExchangeCode(ctx, "test-code")
	if err == nil {
		t.Fatal("expected error for malformed user response")
	}
}

func TestDiscordOAuthProvider_ExchangeCode_GuildsFetchError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
		})
	}))
	defer tokenServer.Close()

	userServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "111222333444555666",
			"username": "usagi",
		})
	}))
	defer userServer.Close()

	// ギルド取得がレート制限で失敗するケース
	guildsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer guildsServer.Close()

	provider := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID:  "test-client-id",
		TokenURL:  tokenServer.URL,
		UserURL:   userServer.URL,
		GuildsURL: guildsServer.URL,
	})

	ctx := context.Background()
	_, err := provider.ExchangeCode(ctx, "test-code")
	if err == nil {
		t.Fatal("expected error when guilds fetch fails")
	}
}
