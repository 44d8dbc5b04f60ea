package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/oauth2"
)

// endpointSet はプロバイダーごとの既定エンドポイント。
type endpointSet struct {
	authURL     string
	tokenURL    string
	userInfoURL string
	scopes      []string
}

var knownEndpoints = map[string]endpointSet{
	ProviderGoogle: {
		authURL:     "https://accounts.google.com/o/oauth2/auth",
		tokenURL:    "https://oauth2.googleapis.com/token",
		userInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
		scopes:      []string{"openid", "email", "profile"},
	},
	ProviderNaver: {
		authURL:     "https://nid.naver.com/oauth2.0/authorize",
		tokenURL:    "https://nid.naver.com/oauth2.0/token",
		userInfoURL: "https://openapi.naver.com/v1/nid/me",
		scopes:      []string{"name", "email"},
	},
	ProviderKakao: {
		authURL:     "https://kauth.kakao.com/oauth/authorize",
		tokenURL:    "https://kauth.kakao.com/oauth/token",
		userInfoURL: "https://kapi.kakao.com/v2/user/me",
		scopes:      []string{"profile_nickname"},
	},
}

// ProviderConfig はOAuthプロバイダーの設定。
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// AuthCodeURL は認可エンドポイントへのリダイレクトURLを生成する。
	AuthCodeURL(state string) string
	// FetchProfile は認可コードをトークンに交換し、プロフィール属性を取得する。
	FetchProfile(ctx context.Context, code string) (map[string]any, error)
}

// Provider はoauth2.Configによる認可コードフローを提供する。
type Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
}

// NewProvider はProviderを生成する。
// 既知のプロバイダーはURLとスコープを省略できる。
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required for provider %q", cfg.Name)
	}

	defaults, known := knownEndpoints[cfg.Name]
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.authURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.tokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaults.userInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.scopes
	}
	if !known && (cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "") {
		return nil, &UnrecognizedProviderError{Provider: cfg.Name}
	}

	return &Provider{
		name: cfg.Name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// Name はプロバイダー名を返す。
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL は認可エンドポイントへのリダイレクトURLを生成する。
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// FetchProfile は認可コードをトークンに交換し、ユーザー情報エンドポイントの応答を返す。
// 数値は精度を保つためjson.Numberのまま返す。
func (p *Provider) FetchProfile(ctx context.Context, code string) (map[string]any, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var attributes map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&attributes); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	return attributes, nil
}

// Registry は有効なプロバイダーの一覧。生成後は変更しない。
type Registry struct {
	providers map[string]OAuthProvider
}

// NewRegistry はRegistryを生成する。
func NewRegistry(providers map[string]OAuthProvider) *Registry {
	copied := make(map[string]OAuthProvider, len(providers))
	for name, p := range providers {
		copied[name] = p
	}
	return &Registry{providers: copied}
}

// Get はプロバイダーを返す。未登録の場合は*UnrecognizedProviderErrorを返す。
func (r *Registry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &UnrecognizedProviderError{Provider: name}
	}
	return p, nil
}

// Names は登録済みプロバイダー名を昇順で返す。
func (r *Registry) Names() []string {
	names := lo.Keys(r.providers)
	sort.Strings(names)
	return names
}

// compile-time interface check
var _ OAuthProvider = (*Provider)(nil)
