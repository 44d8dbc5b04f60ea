package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/finreport/internal/auth"
	"github.com/hitoshi/finreport/internal/metrics"
	"github.com/hitoshi/finreport/internal/middleware"
	"github.com/hitoshi/finreport/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (string, error)
	Login(ctx context.Context, loginID, password string) (string, error)
	IssueToken(subject string) (string, error)
}

// LoginRecorder はログイン結果のメトリクスを記録する。
type LoginRecorder interface {
	RecordLoginSuccess(method, provider string)
	RecordLoginFailure(method, provider string)
	RecordTokenIssued()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// FrontendURL はログイン成功後のリダイレクト先。
	FrontendURL  string
	CookieSecure bool
}

// AuthHandler はログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

// Authorize はOAuthフローを開始し、プロバイダの認可画面にリダイレクトする。
// GET /oauth2/authorization/{provider}
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.LoginURL(provider, state)
	if err != nil {
		var unknown *auth.UnrecognizedProviderError
		if errors.As(err, &unknown) {
			middleware.WriteErrorResponse(w, http.StatusNotFound,
				model.NewInvalidRequestError("unsupported provider: "+provider))
			return
		}
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusFound)
}

// Callback はOAuthコールバックを処理し、ログイン成功時はトークン付きでフロントエンドにリダイレクトする。
// GET /login/oauth2/code/{provider}?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("provider", provider),
			slog.String("query_state", state),
		)
		h.recordFailure(metrics.MethodOAuth, provider)
		h.redirectLoginFailed(w, r, "invalid_state")
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		slog.Info("oauth authorization denied",
			slog.String("provider", provider),
			slog.String("error", providerErr),
		)
		h.recordFailure(metrics.MethodOAuth, provider)
		h.redirectLoginFailed(w, r, "access_denied")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		h.recordFailure(metrics.MethodOAuth, provider)
		h.redirectLoginFailed(w, r, "missing_code")
		return
	}

	// 3. 外部IDの解決
	subject, err := h.service.HandleCallback(r.Context(), provider, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		h.recordFailure(metrics.MethodOAuth, provider)
		reason := "oauth_failed"
		if errors.Is(err, auth.ErrAccountWithdrawn) {
			reason = "account_withdrawn"
		}
		h.redirectLoginFailed(w, r, reason)
		return
	}

	// 4. トークンを発行してフロントエンドへ
	h.redirectWithToken(w, r, provider, subject)
}

// redirectWithToken はsubjectのトークンを発行し、クエリパラメータに付けてフロントエンドへリダイレクトする。
// 発行に失敗した場合は500を返す。
func (h *AuthHandler) redirectWithToken(w http.ResponseWriter, r *http.Request, provider, subject string) {
	tok, err := h.service.IssueToken(subject)
	if err != nil {
		slog.Error("failed to issue token",
			slog.String("login_id", subject),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordTokenIssued()
		h.recorder.RecordLoginSuccess(metrics.MethodOAuth, provider)
	}

	target := h.config.FrontendURL + "/?token=" + url.QueryEscape(tok)
	http.Redirect(w, r, target, http.StatusFound)
}

// redirectLoginFailed はログイン失敗画面へリダイレクトする。
func (h *AuthHandler) redirectLoginFailed(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.config.FrontendURL + "/login?error=" + url.QueryEscape(reason)
	http.Redirect(w, r, target, http.StatusFound)
}

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// Login はIDとパスワードでログインし、トークンを返す。
// POST /api/user/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tok, err := h.service.Login(r.Context(), req.LoginID, req.Password)
	if err != nil {
		h.recordFailure(metrics.MethodPassword, "")
		if errors.Is(err, auth.ErrInvalidCredentials) {
			middleware.WriteJSON(w, http.StatusUnauthorized, loginResponse{
				Success: false,
				Message: model.NewLoginFailedError().Message,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordTokenIssued()
		h.recorder.RecordLoginSuccess(metrics.MethodPassword, "")
	}

	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "ログインに成功しました。",
		Token:   tok,
	})
}

func (h *AuthHandler) recordFailure(method, provider string) {
	if h.recorder != nil {
		h.recorder.RecordLoginFailure(method, provider)
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
