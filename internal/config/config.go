// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OAuthProviders はサポートするOAuthプロバイダ名の一覧。
var OAuthProviders = []string{"google", "naver", "kakao"}

// OAuthClient はOAuthプロバイダごとのクライアント設定。
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Configured はクライアントIDが設定されているかどうかを返す。
func (c OAuthClient) Configured() bool {
	return c.ClientID != ""
}

// SMTP はメール送信の設定。Hostが空の場合はメールをログ出力のみとする。
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// URLs
	BaseURL     string
	FrontendURL string

	// OAuth はプロバイダ名をキーとするクライアント設定。
	OAuth map[string]OAuthClient

	// Auth
	PublicPaths []string

	// Mail
	SMTP SMTP

	// Worker
	TokenCleanupInterval time.Duration
	// WorkerMetricsPort はワーカーが/metricsを公開するポート。
	WorkerMetricsPort string

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	var missing []string
	for _, key := range []string{"DATABASE_URL", "FRONTEND_URL", "BASE_URL"} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		BaseURL:     strings.TrimRight(v.GetString("BASE_URL"), "/"),
		FrontendURL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		OAuth:       make(map[string]OAuthClient, len(OAuthProviders)),
		PublicPaths: splitList(v.GetString("AUTH_PUBLIC_PATHS")),
		SMTP: SMTP{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
			TLS:      v.GetBool("SMTP_TLS"),
		},
		TokenCleanupInterval: v.GetDuration("TOKEN_CLEANUP_INTERVAL"),
		WorkerMetricsPort:    v.GetString("WORKER_METRICS_PORT"),
		LogLevel:             strings.ToLower(v.GetString("LOG_LEVEL")),
		ServerPort:           v.GetString("SERVER_PORT"),
		CORSAllowedOrigin:    v.GetString("CORS_ALLOWED_ORIGIN"),
	}

	for _, name := range OAuthProviders {
		prefix := strings.ToUpper(name)
		cfg.OAuth[name] = OAuthClient{
			ClientID:     v.GetString(prefix + "_CLIENT_ID"),
			ClientSecret: v.GetString(prefix + "_CLIENT_SECRET"),
			RedirectURL:  v.GetString(prefix + "_REDIRECT_URL"),
		}
	}

	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = cfg.FrontendURL
	}
	if cfg.TokenCleanupInterval <= 0 {
		cfg.TokenCleanupInterval = 24 * time.Hour
	}
	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = 587
	}

	return cfg, nil
}

// RedirectURL はプロバイダのコールバックURLを返す。未設定の場合はBASE_URLから組み立てる。
func (c *Config) RedirectURL(provider string) string {
	if u := c.OAuth[provider].RedirectURL; u != "" {
		return u
	}
	return c.BaseURL + "/login/oauth2/code/" + provider
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("WORKER_METRICS_PORT", "9091")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_TLS", true)
	v.SetDefault("TOKEN_CLEANUP_INTERVAL", 24*time.Hour)
	v.SetDefault("LOG_LEVEL", "info")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
