package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired      = "AUTH_REQUIRED"
	ErrCodeAccessDenied      = "ACCESS_DENIED"
	ErrCodeLoginFailed       = "LOGIN_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeDuplicateAccount  = "DUPLICATE_ACCOUNT"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodePasswordMismatch  = "PASSWORD_MISMATCH"
	ErrCodeInvalidResetToken = "INVALID_RESET_TOKEN"
	ErrCodeAlreadyWithdrawn  = "ALREADY_WITHDRAWN"
	ErrCodeInvalidVerifyLink = "INVALID_VERIFICATION_TOKEN"
)

// NewAuthRequiredError は未認証エラーを生成する。
// トークンの期限切れと改ざんは区別しない。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAccessDeniedError は権限不足エラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
// 存在しないIDとパスワード不一致は区別しない。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "ログインに失敗しました: IDまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "IDとパスワードを確認してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewDuplicateAccountError は既に存在するIDで登録しようとした場合のエラーを生成する。
func NewDuplicateAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  "既に存在するユーザーです。",
		Category: "account",
		Action:   "別のIDで登録するか、ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "account",
		Action:   "ログインし直してください。",
	}
}

// NewAlreadyWithdrawnError は退会済みユーザーに対する操作のエラーを生成する。
func NewAlreadyWithdrawnError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyWithdrawn,
		Message:  "既に退会したユーザーです。",
		Category: "account",
		Action:   "新しいアカウントを作成してください。",
	}
}

// NewPasswordMismatchError は退会時のパスワード不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードが一致しません。",
		Category: "auth",
		Action:   "パスワードを確認してください。",
	}
}

// NewInvalidResetTokenError はパスワード再設定トークンが無効な場合のエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResetToken,
		Message:  "パスワード再設定リンクが無効か、有効期限が切れています。",
		Category: "account",
		Action:   "もう一度パスワード再設定を申請してください。",
	}
}

// NewInvalidVerificationTokenError はメール確認トークンが無効な場合のエラーを生成する。
func NewInvalidVerificationTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVerifyLink,
		Message:  "メール確認リンクが無効か、有効期限が切れています。",
		Category: "account",
		Action:   "もう一度登録をやり直してください。",
	}
}
