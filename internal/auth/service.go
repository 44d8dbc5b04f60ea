// Package auth はOAuthソーシャルログイン、外部IDの解決、パスワードログインを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/finreport/internal/repository"
)

// TokenIssuer は本人確認トークンを発行する。
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// IdentityResolver は外部プロフィールをlogin_idに解決する。
type IdentityResolver interface {
	Resolve(ctx context.Context, provider string, attributes map[string]any) (string, error)
	Supports(provider string) bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers *Registry
	resolver  IdentityResolver
	accounts  repository.AccountRepository
	issuer    TokenIssuer
}

// NewService はServiceを生成する。
func NewService(
	providers *Registry,
	resolver IdentityResolver,
	accounts repository.AccountRepository,
	issuer TokenIssuer,
) *Service {
	return &Service{
		providers: providers,
		resolver:  resolver,
		accounts:  accounts,
		issuer:    issuer,
	}
}

// LoginURL は指定プロバイダーの認可URLを生成する。
func (s *Service) LoginURL(provider, state string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、ログインしたアカウントのlogin_idを返す。
// 未登録の外部IDの場合はアカウントと紐付けを自動作成する。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	attributes, err := p.FetchProfile(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s profile: %w", provider, err)
	}

	loginID, err := s.resolver.Resolve(ctx, provider, attributes)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s identity: %w", provider, err)
	}

	slog.Info("oauth login succeeded",
		slog.String("login_id", loginID),
		slog.String("provider", provider),
	)
	return loginID, nil
}

// provider はクライアントが登録され、かつプロフィールの解決に対応したプロバイダーを返す。
// クライアントだけが設定されたプロバイダーは同意画面へ送る前に拒否する。
func (s *Service) provider(name string) (OAuthProvider, error) {
	if !s.resolver.Supports(name) {
		return nil, &UnrecognizedProviderError{Provider: name}
	}
	return s.providers.Get(name)
}

// Login はlogin_idとパスワードで認証し、トークンを発行する。
// 失敗理由はErrInvalidCredentialsにまとめ、呼び出し元には区別させない。
func (s *Service) Login(ctx context.Context, loginID, password string) (string, error) {
	if loginID == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	account, err := s.accounts.FindByLoginID(ctx, loginID)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		slog.Info("login rejected", slog.String("login_id", loginID), slog.String("reason", "unknown_account"))
		return "", ErrInvalidCredentials
	}
	if !account.CanLogin() {
		slog.Info("login rejected", slog.String("login_id", loginID), slog.String("reason", "inactive_account"))
		return "", ErrInvalidCredentials
	}
	if !CheckPassword(account.CredentialHash, password) {
		slog.Info("login rejected", slog.String("login_id", loginID), slog.String("reason", "password_mismatch"))
		return "", ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(account.LoginID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// IssueToken は指定subjectのトークンを発行する。
func (s *Service) IssueToken(subject string) (string, error) {
	return s.issuer.Issue(subject)
}
