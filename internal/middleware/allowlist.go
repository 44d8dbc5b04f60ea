package middleware

import (
	"strings"

	"github.com/samber/lo"
)

// DefaultPublicPaths は認証なしで到達できるパスの既定値。
// 末尾の"/**"はそのプレフィックス配下すべてに一致する。
var DefaultPublicPaths = []string{
	"/",
	"/api/user/signup",
	"/api/user/login",
	"/api/user/login/**",
	"/api/user/reset-password",
	"/api/user/reset-password/**",
	"/auth/verify",
	"/login/oauth2/code/**",
	"/oauth2/authorization/**",
	"/error",
	"/favicon.ico",
	"/health",
	"/metrics",
}

type pathPattern struct {
	path   string
	prefix bool
}

func (p pathPattern) match(path string) bool {
	if !p.prefix {
		return path == p.path
	}
	return path == p.path || strings.HasPrefix(path, p.path+"/")
}

// PathMatcher は公開パスの一覧に対する一致判定を行う。生成後は変更しない。
type PathMatcher struct {
	patterns []pathPattern
}

// NewPathMatcher はパターン一覧からPathMatcherを生成する。
// 空白のみのパターンは無視する。
func NewPathMatcher(patterns []string) *PathMatcher {
	compiled := lo.FilterMap(patterns, func(raw string, _ int) (pathPattern, bool) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return pathPattern{}, false
		}
		if base, ok := strings.CutSuffix(raw, "/**"); ok {
			return pathPattern{path: base, prefix: true}, true
		}
		return pathPattern{path: raw}, true
	})
	return &PathMatcher{patterns: compiled}
}

// Match はpathが公開パスに一致するかどうかを返す。
func (m *PathMatcher) Match(path string) bool {
	return lo.ContainsBy(m.patterns, func(p pathPattern) bool {
		return p.match(path)
	})
}
