package middleware

import (
	"net/http"

	"github.com/hitoshi/finreport/internal/model"
)

// WriteAuthRequired は未認証のリクエストに401を返す。
// 本文は{"success":false,"message":...}形式のJSON。
func WriteAuthRequired(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
}

// NewRequireAuthenticated は認証主体のないリクエストを401で拒否するミドルウェアを返す。
func NewRequireAuthenticated() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				WriteAuthRequired(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireAuthority は指定の権限を持たないリクエストを拒否するミドルウェアを返す。
// 未認証なら401、権限不足なら403を返す。
func NewRequireAuthority(authority string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteAuthRequired(w)
				return
			}
			if !p.HasAuthority(authority) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
