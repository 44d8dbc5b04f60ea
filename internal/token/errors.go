package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Reason はトークン検証失敗の分類。診断ログ用で、クライアントには返さない。
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonSignature Reason = "signature_invalid"
	ReasonExpired   Reason = "expired"
	ReasonInvalid   Reason = "invalid"
)

// TokenError はトークンが不正・改ざん・期限切れのいずれかであることを表す。
type TokenError struct {
	Reason Reason
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *TokenError) Error() string {
	return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TokenError) Unwrap() error {
	return e.Err
}

// classify はjwtライブラリのエラーをTokenErrorに変換する。
func classify(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &TokenError{Reason: ReasonSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &TokenError{Reason: ReasonMalformed, Err: err}
	default:
		return &TokenError{Reason: ReasonInvalid, Err: err}
	}
}
