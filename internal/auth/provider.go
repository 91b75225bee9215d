package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IdentityProvider は外部IDプロバイダーとの通信インターフェースを定義する。
// 認可コードフローのコード交換のみを扱い、IDトークンの検証は
// TokenVerifierが行う。
type IdentityProvider interface {
	// LoginURL は認可エンドポイントへのリダイレクトURLを生成する。
	LoginURL(state string) string

	// ExchangeCode は認可コードをIDトークンに交換する。
	// 返り値は未検証の生トークン文字列。
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// ProviderConfig はIDプロバイダー接続設定。
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// httpProvider はIdentityProviderのHTTP実装。
type httpProvider struct {
	config ProviderConfig
	client *http.Client
}

// NewHTTPProvider はIdentityProviderの新しいインスタンスを生成する。
func NewHTTPProvider(config ProviderConfig) *httpProvider {
	return &httpProvider{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginURL は認可エンドポイントへのリダイレクトURLを生成する。
func (p *httpProvider) LoginURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.config.ClientID)
	q.Set("redirect_uri", p.config.RedirectURL)
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	return strings.TrimRight(p.config.IssuerURL, "/") + "/authorize?" + q.Encode()
}

// tokenResponse はトークンエンドポイントの応答。
type tokenResponse struct {
	IDToken string `json:"id_token"`
}

// ExchangeCode は認可コードをIDトークンに交換する。
func (p *httpProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("redirect_uri", p.config.RedirectURL)

	endpoint := strings.TrimRight(p.config.IssuerURL, "/") + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return "", fmt.Errorf("token response has no id_token")
	}

	return tr.IDToken, nil
}

// compile-time interface check
var _ IdentityProvider = (*httpProvider)(nil)
