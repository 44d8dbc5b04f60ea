package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/finreport/internal/middleware"
	"github.com/hitoshi/finreport/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginURLFn       func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code string) (string, error)
	loginFn          func(ctx context.Context, loginID, password string) (string, error)
	issueTokenFn     func(subject string) (string, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) LoginURL(provider, state string) (string, error) {
	if m.loginURLFn != nil {
		return m.loginURLFn(provider, state)
	}
	return "https://idp.example.com/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string) (string, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code)
	}
	return provider + "_1", nil
}

func (m *mockAuthService) Login(ctx context.Context, loginID, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, loginID, password)
	}
	return "token-for-" + loginID, nil
}

func (m *mockAuthService) IssueToken(subject string) (string, error) {
	if m.issueTokenFn != nil {
		return m.issueTokenFn(subject)
	}
	return "token-for-" + subject, nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	registerFn             func(ctx context.Context, loginID, password string) (*model.Account, error)
	verifyEmailFn          func(ctx context.Context, token string) error
	withdrawFn             func(ctx context.Context, loginID, password string) error
	requestPasswordResetFn func(ctx context.Context, loginID string) error
	resetPasswordFn        func(ctx context.Context, token, password string) error
	getAccountFn           func(ctx context.Context, loginID string) (*model.Account, error)
}

var _ UserServiceInterface = (*mockUserService)(nil)

func (m *mockUserService) Register(ctx context.Context, loginID, password string) (*model.Account, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, loginID, password)
	}
	return &model.Account{ID: 1, LoginID: loginID}, nil
}

func (m *mockUserService) VerifyEmail(ctx context.Context, token string) error {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, token)
	}
	return nil
}

func (m *mockUserService) Withdraw(ctx context.Context, loginID, password string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, loginID, password)
	}
	return nil
}

func (m *mockUserService) RequestPasswordReset(ctx context.Context, loginID string) error {
	if m.requestPasswordResetFn != nil {
		return m.requestPasswordResetFn(ctx, loginID)
	}
	return nil
}

func (m *mockUserService) ResetPassword(ctx context.Context, token, password string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, password)
	}
	return nil
}

func (m *mockUserService) GetAccount(ctx context.Context, loginID string) (*model.Account, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, loginID)
	}
	return &model.Account{
		ID: 1, LoginID: loginID, Enabled: true,
		Roles: []string{model.RoleUser}, State: model.ActiveState(),
	}, nil
}

// mockRecorder はRecorderのモック実装。
type mockRecorder struct {
	mu            sync.Mutex
	loginSuccess  []string
	loginFailure  []string
	tokensIssued  int
	statuses      []int
	authRejection int
}

var _ Recorder = (*mockRecorder)(nil)

func (m *mockRecorder) RecordLoginSuccess(method, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginSuccess = append(m.loginSuccess, method+"/"+provider)
}

func (m *mockRecorder) RecordLoginFailure(method, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginFailure = append(m.loginFailure, method+"/"+provider)
}

func (m *mockRecorder) RecordTokenIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokensIssued++
}

func (m *mockRecorder) RecordHTTPStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockRecorder) RecordRequestLatency(time.Duration) {}

func (m *mockRecorder) RecordAuthRejection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authRejection++
}

// --- ヘルパー ---

// withSubject はテスト用に認証主体をコンテキストに注入するヘルパー。
func withSubject(r *http.Request, subject string, authorities ...string) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), &middleware.Principal{
		Subject:     subject,
		Authorities: authorities,
	})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseBody はレスポンスボディを統一フォーマットとしてパースするヘルパー。
func parseBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ResponseBody {
	t.Helper()
	var body middleware.ResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}
