package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials はパスワードログインの失敗を表す。
	// アカウント不在、退会済み、無効、パスワード不一致を区別しない。
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountWithdrawn は外部IDに対応するアカウントが退会済みであることを表す。
	// 退会済みアカウントは再有効化しないため、同じ外部IDでは以後ログインも再登録もできない。
	ErrAccountWithdrawn = errors.New("auth: account has been withdrawn")
)

// UnrecognizedProviderError は未対応のOAuthプロバイダーが指定されたことを表す。
type UnrecognizedProviderError struct {
	Provider string
}

func (e *UnrecognizedProviderError) Error() string {
	return fmt.Sprintf("unrecognized oauth provider: %q", e.Provider)
}

// MalformedProfileError はプロバイダーのプロフィールに必要な属性がないことを表す。
type MalformedProfileError struct {
	Provider  string
	Attribute string
}

func (e *MalformedProfileError) Error() string {
	return fmt.Sprintf("malformed %s profile: missing or invalid attribute %q", e.Provider, e.Attribute)
}
