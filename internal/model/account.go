// Package model はドメインモデルを定義する。
package model

import "time"

// AccountStatus はアカウントのライフサイクル状態を表す。
type AccountStatus string

const (
	// AccountStatusActive は利用中のアカウント。
	AccountStatusActive AccountStatus = "active"
	// AccountStatusWithdrawn は退会済みのアカウント。物理削除はしない。
	AccountStatusWithdrawn AccountStatus = "withdrawn"
)

// AccountState はアカウントのライフサイクル状態と退会日時の組。
// 退会日時は Withdrawn 状態でのみ意味を持つため、コンストラクタ経由でのみ生成する。
type AccountState struct {
	status      AccountStatus
	withdrawnAt time.Time
}

// ActiveState は利用中状態を返す。
func ActiveState() AccountState {
	return AccountState{status: AccountStatusActive}
}

// WithdrawnState は指定日時に退会した状態を返す。
func WithdrawnState(at time.Time) AccountState {
	return AccountState{status: AccountStatusWithdrawn, withdrawnAt: at}
}

// Status は状態種別を返す。
func (s AccountState) Status() AccountStatus {
	if s.status == "" {
		return AccountStatusActive
	}
	return s.status
}

// IsWithdrawn は退会済みかどうかを返す。
func (s AccountState) IsWithdrawn() bool {
	return s.status == AccountStatusWithdrawn
}

// WithdrawnAt は退会日時を返す。退会していない場合は false を返す。
func (s AccountState) WithdrawnAt() (time.Time, bool) {
	if !s.IsWithdrawn() {
		return time.Time{}, false
	}
	return s.withdrawnAt, true
}

// 権限名。
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account はローカルのユーザーアカウントを表す。
// パスワード登録とOAuth自動作成の両方のアカウントを含む。
type Account struct {
	ID             int64
	LoginID        string
	CredentialHash string
	Enabled        bool
	IsDirectSignup bool
	Roles          []string
	State          AccountState
	CreatedAt      time.Time
}

// Withdraw はアカウントを退会状態に遷移させる。
// 退会済みアカウントは常に無効化される。
func (a *Account) Withdraw(at time.Time) {
	a.State = WithdrawnState(at)
	a.Enabled = false
}

// CanLogin はログイン可能な状態かどうかを返す。
func (a *Account) CanLogin() bool {
	return a.Enabled && !a.State.IsWithdrawn()
}

// Identity は外部IdP（google, naver, kakao 等）との紐付け情報を表す。
// (Provider, ProviderUserID) の組は一意。
type Identity struct {
	ID             int64
	AccountID      int64
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// TokenPurpose はメール送付トークンの用途。
type TokenPurpose string

const (
	// TokenPurposeEmailVerification はメールアドレス確認用。
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	// TokenPurposePasswordReset はパスワード再設定用。
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// AccountToken はメールで送付する一回限りのトークンを表す。
// アカウントと用途の組ごとに最大1件のみ存在する。
type AccountToken struct {
	Token     string
	AccountID int64
	Purpose   TokenPurpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired は指定時刻時点で期限切れかどうかを返す。
func (t *AccountToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
