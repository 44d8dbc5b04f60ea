// Package user はアカウント管理のドメインロジックを提供する。
// 会員登録、メール確認、退会、パスワード再設定を扱う。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/finreport/internal/auth"
	"github.com/hitoshi/finreport/internal/model"
	"github.com/hitoshi/finreport/internal/repository"
)

const (
	// VerificationTTL はメール確認トークンの有効期間。
	VerificationTTL = 24 * time.Hour
	// PasswordResetTTL はパスワード再設定トークンの有効期間。
	PasswordResetTTL = time.Hour

	minPasswordLength = 8
	maxPasswordLength = 72
)

// Notifier は本人確認メールの送信インターフェース。
type Notifier interface {
	SendVerification(ctx context.Context, to, link string, ttl time.Duration) error
	SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error
}

// Config はリンク生成に使うURL。
type Config struct {
	// BaseURL はこのAPIサーバーの公開URL。メール確認リンクに使う。
	BaseURL string
	// FrontendURL はフロントエンドのURL。パスワード再設定画面のリンクに使う。
	FrontendURL string
}

// Service はアカウント管理のサービス層。
type Service struct {
	accounts repository.AccountRepository
	tokens   repository.AccountTokenRepository
	notifier Notifier
	config   Config
	now      func() time.Time
	hash     func(password string) (string, error)
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPasswordHasher はパスワードのハッシュ関数を差し替える。
func WithPasswordHasher(hash func(password string) (string, error)) Option {
	return func(s *Service) { s.hash = hash }
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accounts repository.AccountRepository,
	tokens repository.AccountTokenRepository,
	notifier Notifier,
	config Config,
	opts ...Option,
) *Service {
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		notifier: notifier,
		config:   config,
		now:      time.Now,
		hash:     auth.HashPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register はメールアドレスとパスワードでアカウントを作成し、確認メールを送信する。
// 作成したアカウントはメール確認が済むまで無効のままとなる。
func (s *Service) Register(ctx context.Context, loginID, password string) (*model.Account, error) {
	loginID = strings.TrimSpace(loginID)
	if err := validateLoginID(loginID); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	account := &model.Account{
		LoginID:        loginID,
		CredentialHash: hash,
		Enabled:        false,
		IsDirectSignup: true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewDuplicateAccountError()
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	slog.Info("アカウントを登録しました", slog.String("login_id", loginID))

	tok, err := s.issueToken(ctx, account.ID, model.TokenPurposeEmailVerification, VerificationTTL)
	if err != nil {
		return nil, err
	}

	link := s.config.BaseURL + "/auth/verify?token=" + url.QueryEscape(tok)
	if err := s.notifier.SendVerification(ctx, loginID, link, VerificationTTL); err != nil {
		// 登録自体は成立しているため、送信失敗はログのみとする
		slog.Error("確認メールの送信に失敗しました",
			slog.String("login_id", loginID),
			slog.String("error", err.Error()),
		)
	}

	return account, nil
}

// VerifyEmail はメール確認トークンを消費し、アカウントを有効化する。
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return model.NewInvalidVerificationTokenError()
	}

	t, err := s.tokens.FindByToken(ctx, token, model.TokenPurposeEmailVerification)
	if err != nil {
		return fmt.Errorf("確認トークンの取得に失敗しました: %w", err)
	}
	if t == nil {
		return model.NewInvalidVerificationTokenError()
	}
	if t.Expired(s.now()) {
		if err := s.tokens.Delete(ctx, t.Token); err != nil {
			slog.Warn("期限切れトークンの削除に失敗しました", slog.String("error", err.Error()))
		}
		return model.NewInvalidVerificationTokenError()
	}

	if err := s.accounts.Enable(ctx, t.AccountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewInvalidVerificationTokenError()
		}
		return fmt.Errorf("アカウントの有効化に失敗しました: %w", err)
	}

	if err := s.tokens.Delete(ctx, t.Token); err != nil {
		return fmt.Errorf("確認トークンの削除に失敗しました: %w", err)
	}

	slog.Info("メールアドレスを確認しました", slog.Int64("account_id", t.AccountID))
	return nil
}

// Withdraw はアカウントの退会処理を実行する。
// 直接登録したアカウントはパスワードの一致を要求する。
// 外部ID紐付けの削除と退会状態への遷移は同一トランザクションで行う。
func (s *Service) Withdraw(ctx context.Context, loginID, password string) error {
	account, err := s.accounts.FindByLoginID(ctx, loginID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewUserNotFoundError()
	}
	if account.State.IsWithdrawn() {
		return model.NewAlreadyWithdrawnError()
	}
	if account.IsDirectSignup && (password == "" || !auth.CheckPassword(account.CredentialHash, password)) {
		return model.NewPasswordMismatchError()
	}

	slog.Info("退会処理を開始します", slog.String("login_id", loginID))

	account.Withdraw(s.now())
	if err := s.accounts.Withdraw(ctx, account); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewAlreadyWithdrawnError()
		}
		return fmt.Errorf("退会処理に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("login_id", loginID))
	return nil
}

// RequestPasswordReset はパスワード再設定メールを送信する。
// アカウントの有無を推測させないため、対象外のIDでもエラーを返さない。
func (s *Service) RequestPasswordReset(ctx context.Context, loginID string) error {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return model.NewInvalidRequestError("loginId is required")
	}

	account, err := s.accounts.FindByLoginID(ctx, loginID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil || account.State.IsWithdrawn() || !account.IsDirectSignup {
		slog.Info("パスワード再設定の対象外です", slog.String("login_id", loginID))
		return nil
	}

	tok, err := s.issueToken(ctx, account.ID, model.TokenPurposePasswordReset, PasswordResetTTL)
	if err != nil {
		return err
	}

	link := s.config.FrontendURL + "/reset-password?token=" + url.QueryEscape(tok)
	if err := s.notifier.SendPasswordReset(ctx, loginID, link, PasswordResetTTL); err != nil {
		slog.Error("パスワード再設定メールの送信に失敗しました",
			slog.String("login_id", loginID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResetPassword は再設定トークンを消費し、新しいパスワードを設定する。
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	if token == "" {
		return model.NewInvalidResetTokenError()
	}

	t, err := s.tokens.FindByToken(ctx, token, model.TokenPurposePasswordReset)
	if err != nil {
		return fmt.Errorf("再設定トークンの取得に失敗しました: %w", err)
	}
	if t == nil || t.Expired(s.now()) {
		return model.NewInvalidResetTokenError()
	}

	account, err := s.accounts.FindByID(ctx, t.AccountID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil || account.State.IsWithdrawn() {
		return model.NewInvalidResetTokenError()
	}

	hash, err := s.hash(password)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	if err := s.accounts.UpdateCredential(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	if err := s.tokens.Delete(ctx, t.Token); err != nil {
		return fmt.Errorf("再設定トークンの削除に失敗しました: %w", err)
	}

	slog.Info("パスワードを再設定しました", slog.String("login_id", account.LoginID))
	return nil
}

// GetAccount はlogin_idのアカウントを返す。退会済みの場合は見つからない扱いとする。
func (s *Service) GetAccount(ctx context.Context, loginID string) (*model.Account, error) {
	account, err := s.accounts.FindByLoginID(ctx, loginID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil || account.State.IsWithdrawn() {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// issueToken は用途別のトークンを発行し、既存のものを置き換える。
func (s *Service) issueToken(ctx context.Context, accountID int64, purpose model.TokenPurpose, ttl time.Duration) (string, error) {
	t := &model.AccountToken{
		Token:     uuid.NewString(),
		AccountID: accountID,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.tokens.Replace(ctx, t); err != nil {
		return "", fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return t.Token, nil
}

func validateLoginID(loginID string) error {
	if loginID == "" {
		return model.NewInvalidRequestError("loginId is required")
	}
	addr, err := mail.ParseAddress(loginID)
	if err != nil || addr.Address != loginID {
		return model.NewInvalidRequestError("loginId must be an email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return model.NewInvalidRequestError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return model.NewInvalidRequestError(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}
