package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/finreport/internal/middleware"
)

// HealthChecker はDB等の依存先の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Health は依存先の疎通を確認し、結果を返す。
// GET /health
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Root はサービス名を返す。
// GET /
func Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteSuccessResponse(w, http.StatusOK, "finreport api", nil)
}

// Favicon は空のレスポンスを返す。
// GET /favicon.ico
func Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// ErrorPage は汎用のエラーレスポンスを返す。
// GET /error
func ErrorPage(w http.ResponseWriter, r *http.Request) {
	middleware.WriteInternalServerError(w)
}

// NotFound は未定義のパスに対する404を返す。
func NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusNotFound, middleware.ResponseBody{
		Success: false,
		Message: "リソースが見つかりません。",
		Code:    "NOT_FOUND",
	})
}

// MethodNotAllowed は許可されていないメソッドに対する405を返す。
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ResponseBody{
		Success: false,
		Message: "許可されていないメソッドです。",
		Code:    "METHOD_NOT_ALLOWED",
	})
}
