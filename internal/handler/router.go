package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/finreport/internal/middleware"
	"github.com/hitoshi/finreport/internal/model"
)

// Recorder はハンドラー層が記録するメトリクス。*metrics.Collectorが満たす。
type Recorder interface {
	middleware.HTTPRecorder
	LoginRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string

	// 認証ゲート
	TokenDecoder    middleware.SubjectDecoder
	AuthorityLoader middleware.AuthorityLoader
	// PublicPaths が空の場合はmiddleware.DefaultPublicPathsを使う。
	PublicPaths []string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// アカウント
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	Metrics        Recorder
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → RequestGate
//
// RequestGateは公開パス以外のリクエストでトークンを検証する。
// 認証必須のルートはRequireAuthenticated、管理者ルートはRequireAuthority(ADMIN)で保護する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publicPaths := deps.PublicPaths
	if len(publicPaths) == 0 {
		publicPaths = middleware.DefaultPublicPaths
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRequestGate(deps.TokenDecoder, deps.AuthorityLoader, middleware.NewPathMatcher(publicPaths)))

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	var loginRecorder LoginRecorder
	if deps.Metrics != nil {
		loginRecorder = deps.Metrics
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, loginRecorder)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.FrontendURL)

	// --- 公開ルート ---
	r.Get("/", Root)
	r.Get("/health", Health(deps.HealthChecker))
	r.Get("/favicon.ico", Favicon)
	r.Get("/error", ErrorPage)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// OAuthフロー
	r.Get("/oauth2/authorization/{provider}", authHandler.Authorize)
	r.Get("/login/oauth2/code/{provider}", authHandler.Callback)

	// メール確認
	r.Get("/auth/verify", userHandler.VerifyEmail)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/signup", userHandler.Signup)
		r.Post("/reset-password/request", userHandler.RequestPasswordReset)
		r.Post("/reset-password", userHandler.ResetPassword)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuthenticated())
			r.Get("/me", userHandler.Me)
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	// --- 管理者ルート ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.NewRequireAuthority(model.RoleAdmin))
		r.Get("/users/{loginId}", userHandler.GetAccount)
	})

	return r
}
