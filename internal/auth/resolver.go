package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/finreport/internal/model"
	"github.com/hitoshi/finreport/internal/repository"
)

// プロバイダー名。
const (
	ProviderGoogle = "google"
	ProviderNaver  = "naver"
	ProviderKakao  = "kakao"
)

// defaultMaxAttempts は一意制約の競合時にResolveをやり直す最大回数。
const defaultMaxAttempts = 3

// ProfileExtractor はプロバイダー固有のプロフィール属性から外部ユーザーIDを取り出す。
type ProfileExtractor interface {
	ProviderUserID(attributes map[string]any) (string, error)
}

// ProfileExtractorFunc は関数をProfileExtractorとして扱うためのアダプター。
type ProfileExtractorFunc func(attributes map[string]any) (string, error)

// ProviderUserID はf(attributes)を呼び出す。
func (f ProfileExtractorFunc) ProviderUserID(attributes map[string]any) (string, error) {
	return f(attributes)
}

// DefaultExtractors はgoogle/naver/kakaoの抽出器を返す。
func DefaultExtractors() map[string]ProfileExtractor {
	return map[string]ProfileExtractor{
		ProviderGoogle: ProfileExtractorFunc(extractGoogle),
		ProviderNaver:  ProfileExtractorFunc(extractNaver),
		ProviderKakao:  ProfileExtractorFunc(extractKakao),
	}
}

// extractGoogle はトップレベルの"sub"を使う。
func extractGoogle(attributes map[string]any) (string, error) {
	id, ok := nonEmptyString(attributes["sub"])
	if !ok {
		return "", &MalformedProfileError{Provider: ProviderGoogle, Attribute: "sub"}
	}
	return id, nil
}

// extractNaver は"response"オブジェクト内の"id"を使う。
func extractNaver(attributes map[string]any) (string, error) {
	response, ok := attributes["response"].(map[string]any)
	if !ok {
		return "", &MalformedProfileError{Provider: ProviderNaver, Attribute: "response"}
	}
	id, ok := nonEmptyString(response["id"])
	if !ok {
		return "", &MalformedProfileError{Provider: ProviderNaver, Attribute: "response.id"}
	}
	return id, nil
}

// extractKakao は数値の"id"を10進文字列に変換して使う。
func extractKakao(attributes map[string]any) (string, error) {
	var id string
	switch v := attributes["id"].(type) {
	case json.Number:
		id = v.String()
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		id = strconv.FormatInt(v, 10)
	case int:
		id = strconv.Itoa(v)
	case string:
		id = v
	}
	if id == "" {
		return "", &MalformedProfileError{Provider: ProviderKakao, Attribute: "id"}
	}
	return id, nil
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

// ResolverOption はResolverの生成オプション。
type ResolverOption func(*Resolver)

// WithCredentialHasher は自動作成アカウントのランダムパスワードのハッシュ関数を差し替える。
func WithCredentialHasher(hash func(password string) (string, error)) ResolverOption {
	return func(r *Resolver) {
		r.hashCredential = hash
	}
}

// Resolver は外部IdPのプロフィールをローカルアカウントのlogin_idに解決する。
// 初回ログイン時はアカウントと紐付けを自動作成する。
type Resolver struct {
	accounts       repository.AccountRepository
	identities     repository.IdentityRepository
	extractors     map[string]ProfileExtractor
	hashCredential func(password string) (string, error)
	maxAttempts    int
}

// NewResolver はResolverを生成する。
func NewResolver(accounts repository.AccountRepository, identities repository.IdentityRepository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		accounts:       accounts,
		identities:     identities,
		extractors:     DefaultExtractors(),
		hashCredential: HashPassword,
		maxAttempts:    defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supports はproviderに対応する抽出器があるかどうかを返す。
func (r *Resolver) Supports(provider string) bool {
	_, ok := r.extractors[provider]
	return ok
}

// Resolve はproviderのプロフィール属性からlogin_idを解決する。
// 同じ外部IDに対しては常に同じlogin_idを返し、アカウントと紐付けは1件ずつしか作らない。
// 同時ログインで一意制約に競合した場合は最初からやり直す。
func (r *Resolver) Resolve(ctx context.Context, provider string, attributes map[string]any) (string, error) {
	extractor, ok := r.extractors[provider]
	if !ok {
		return "", &UnrecognizedProviderError{Provider: provider}
	}

	providerUserID, err := extractor.ProviderUserID(attributes)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		loginID, err := r.resolveOnce(ctx, provider, providerUserID)
		if err == nil {
			return loginID, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return "", err
		}
		lastErr = err
		slog.Warn("identity resolution conflicted, retrying",
			slog.String("provider", provider),
			slog.Int("attempt", attempt),
		)
	}
	return "", fmt.Errorf("failed to resolve identity after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *Resolver) resolveOnce(ctx context.Context, provider, providerUserID string) (string, error) {
	link, err := r.identities.FindByProviderAndProviderUserID(ctx, provider, providerUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if link != nil {
		account, err := r.accounts.FindByID(ctx, link.AccountID)
		if err != nil {
			return "", fmt.Errorf("failed to find linked account: %w", err)
		}
		if account == nil {
			return "", fmt.Errorf("identity %s/%s links to missing account %d", provider, providerUserID, link.AccountID)
		}
		return account.LoginID, nil
	}

	loginID := provider + "_" + providerUserID
	account, err := r.accounts.FindByLoginID(ctx, loginID)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}

	switch {
	case account == nil:
		credential, err := r.hashCredential(uuid.NewString())
		if err != nil {
			return "", fmt.Errorf("failed to hash credential: %w", err)
		}
		account = &model.Account{
			LoginID:        loginID,
			CredentialHash: credential,
			Enabled:        true,
			IsDirectSignup: false,
		}
		if err := r.accounts.Create(ctx, account); err != nil {
			return "", fmt.Errorf("failed to create account: %w", err)
		}
		slog.Info("account created from external identity",
			slog.String("login_id", loginID),
			slog.String("provider", provider),
		)
	case account.State.IsWithdrawn():
		return "", ErrAccountWithdrawn
	}

	identity := &model.Identity{
		AccountID:      account.ID,
		Provider:       provider,
		ProviderUserID: providerUserID,
	}
	if err := r.identities.Create(ctx, identity); err != nil {
		return "", fmt.Errorf("failed to link identity: %w", err)
	}

	return loginID, nil
}

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword はパスワードがハッシュと一致するかを返す。
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
