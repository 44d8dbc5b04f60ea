// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/finreport/internal/model"
)

// AccountRepository はアカウントの永続化インターフェース。
type AccountRepository interface {
	// FindByLoginID はlogin_idでアカウントを取得する。見つからない場合はnilを返す。
	// 退会済みアカウントも返す。
	FindByLoginID(ctx context.Context, loginID string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Account, error)

	// Create はアカウントを作成し、採番されたIDと作成日時をaccountに設定する。
	// login_idが重複する場合はErrConflictを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateCredential はパスワードハッシュを更新する。
	UpdateCredential(ctx context.Context, id int64, credentialHash string) error

	// Enable はアカウントを有効化する。退会済みアカウントは対象外でErrNotFoundを返す。
	Enable(ctx context.Context, id int64) error

	// Withdraw は外部ID紐付けを削除し、accountの退会状態を保存する。
	// accountはAccount.Withdrawで退会状態に遷移済みでなければならない。
	// 両方を同一トランザクションで行う。保存先が利用中でない場合はErrNotFoundを返す。
	Withdraw(ctx context.Context, account *model.Account) error

	// Authorities は利用中アカウントの権限一覧を返す。
	// 該当アカウントがない場合は空を返す。
	Authorities(ctx context.Context, loginID string) ([]string, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は紐付けを作成する。(provider, provider_user_id)が重複する場合はErrConflictを返す。
	Create(ctx context.Context, identity *model.Identity) error
}

// AccountTokenRepository はメール送付トークンの永続化インターフェース。
type AccountTokenRepository interface {
	// Replace は同じアカウント・用途の既存トークンを置き換えて保存する。
	Replace(ctx context.Context, token *model.AccountToken) error

	// FindByToken はトークン文字列と用途で検索する。見つからない場合はnilを返す。
	// 期限切れのトークンも返すため、呼び出し側で期限を確認すること。
	FindByToken(ctx context.Context, token string, purpose model.TokenPurpose) (*model.AccountToken, error)

	// Delete はトークンを削除する。存在しない場合も成功とする。
	Delete(ctx context.Context, token string) error

	// DeleteExpired はnow時点で期限切れのトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
