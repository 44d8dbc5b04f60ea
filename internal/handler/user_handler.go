package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/finreport/internal/middleware"
	"github.com/hitoshi/finreport/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Register(ctx context.Context, loginID, password string) (*model.Account, error)
	VerifyEmail(ctx context.Context, token string) error
	// Withdraw は退会処理を実行する。直接登録のアカウントはパスワードが必要。
	Withdraw(ctx context.Context, loginID, password string) error
	RequestPasswordReset(ctx context.Context, loginID string) error
	ResetPassword(ctx context.Context, token, password string) error
	GetAccount(ctx context.Context, loginID string) (*model.Account, error)
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service     UserServiceInterface
	frontendURL string
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, frontendURL string) *UserHandler {
	return &UserHandler{
		service:     service,
		frontendURL: frontendURL,
	}
}

// accountResponse はアカウント情報のレスポンス。パスワードハッシュは含めない。
type accountResponse struct {
	LoginID        string     `json:"loginId"`
	Enabled        bool       `json:"enabled"`
	IsDirectSignup bool       `json:"isDirectSignup"`
	Roles          []string   `json:"roles"`
	Status         string     `json:"status"`
	WithdrawnAt    *time.Time `json:"withdrawnAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toAccountResponse(a *model.Account) accountResponse {
	resp := accountResponse{
		LoginID:        a.LoginID,
		Enabled:        a.Enabled,
		IsDirectSignup: a.IsDirectSignup,
		Roles:          a.Roles,
		Status:         string(a.State.Status()),
		CreatedAt:      a.CreatedAt,
	}
	if at, ok := a.State.WithdrawnAt(); ok {
		resp.WithdrawnAt = &at
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	return resp
}

type credentialsRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

// Signup はID（メールアドレス）とパスワードでアカウントを登録する。
// POST /api/user/signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.service.Register(r.Context(), req.LoginID, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusCreated, "会員登録が完了しました。確認メールをご確認ください。", nil)
}

// VerifyEmail はメール確認リンクを処理し、結果に応じてフロントエンドへリダイレクトする。
// GET /auth/verify?token=xxx
func (h *UserHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		http.Redirect(w, r, h.frontendURL+"/auth/verify-fail", http.StatusFound)
		return
	}
	http.Redirect(w, r, h.frontendURL+"/auth/verified-success", http.StatusFound)
}

// Me はログイン中のアカウント情報を返す。
// GET /api/user/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteAuthRequired(w)
		return
	}

	account, err := h.service.GetAccount(r.Context(), p.Subject)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, "", toAccountResponse(account))
}

type withdrawRequest struct {
	Password string `json:"password"`
}

// Withdraw はログイン中のアカウントを退会させる。
// パスワードはクエリパラメータpasswordまたはJSONボディで受け付ける。
// DELETE /api/user/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteAuthRequired(w)
		return
	}

	password := r.URL.Query().Get("password")
	if password == "" && r.ContentLength > 0 {
		var req withdrawRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		password = req.Password
	}

	if err := h.service.Withdraw(r.Context(), p.Subject, password); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, "退会が完了しました。", nil)
}

type resetRequestBody struct {
	LoginID string `json:"loginId"`
}

// RequestPasswordReset はパスワード再設定メールを送信する。
// アカウントの有無にかかわらず同じレスポンスを返す。
// POST /api/user/reset-password/request
func (h *UserHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.LoginID); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, "パスワード再設定メールを送信しました。", nil)
}

type resetPasswordBody struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword は再設定トークンを使ってパスワードを変更する。
// POST /api/user/reset-password
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, "パスワードを変更しました。", nil)
}

// GetAccount は管理者向けに指定IDのアカウント情報を返す。
// GET /api/admin/users/{loginId}
func (h *UserHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "loginId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, "", toAccountResponse(account))
}
