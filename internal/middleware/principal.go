// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/samber/lo"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// Principal は認証済みリクエストの主体。
// Subjectはトークンに含まれるlogin_id。
type Principal struct {
	Subject     string
	Authorities []string
}

// HasAuthority は指定の権限を持つかどうかを返す。
func (p *Principal) HasAuthority(authority string) bool {
	return lo.Contains(p.Authorities, authority)
}

// PrincipalFromContext はリクエストコンテキストから認証主体を取得する。
// 未認証の場合はfalseを返す。
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok || p == nil || p.Subject == "" {
		return nil, false
	}
	return p, true
}

// ContextWithPrincipal はコンテキストに認証主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
