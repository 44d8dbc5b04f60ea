package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/hitoshi/finreport/internal/token"
)

const bearerPrefix = "Bearer "

// SubjectDecoder はトークンを検証し、subjectを取り出す。
type SubjectDecoder interface {
	DecodeSubject(token string) (string, error)
}

// AuthorityLoader はsubjectに付与された権限一覧を返す。
type AuthorityLoader interface {
	Authorities(ctx context.Context, subject string) ([]string, error)
}

// NewRequestGate はBearerトークンを検証し、認証主体をコンテキストに注入するミドルウェアを返す。
//
// 公開パスへのリクエストは検証せずにそのまま通す。
// トークンがない、または不正・期限切れの場合も拒否せず、未認証のまま後続に渡す。
// 拒否は後続のNewRequireAuthenticated等が行う。
// 検証中に想定外の失敗が起きた場合のみ、ここで401を返す。
func NewRequestGate(decoder SubjectDecoder, loader AuthorityLoader, publicPaths *PathMatcher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths != nil && publicPaths.Match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := authenticate(r, decoder, loader)
			if err != nil {
				slog.Error("request authentication failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteAuthRequired(w)
				return
			}

			if principal != nil {
				if info := requestInfoFromContext(r.Context()); info != nil {
					info.subject = principal.Subject
				}
				r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errGatePanic は検証中のpanicを表す。
var errGatePanic = errors.New("panic during authentication")

// authenticate はリクエストから認証主体を組み立てる。
// 認証情報がない、またはトークンが無効な場合は(nil, nil)を返す。
func authenticate(r *http.Request, decoder SubjectDecoder, loader AuthorityLoader) (principal *Principal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic recovered in request gate",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			principal, err = nil, errGatePanic
		}
	}()

	raw, ok := bearerToken(r)
	if !ok {
		return nil, nil
	}

	subject, err := decoder.DecodeSubject(raw)
	if err != nil {
		var tokenErr *token.TokenError
		if errors.As(err, &tokenErr) {
			slog.Warn("invalid bearer token",
				slog.String("path", r.URL.Path),
				slog.String("reason", string(tokenErr.Reason)),
			)
			return nil, nil
		}
		return nil, err
	}

	var authorities []string
	if loader != nil {
		authorities, err = loader.Authorities(r.Context(), subject)
		if err != nil {
			return nil, err
		}
	}

	return &Principal{Subject: subject, Authorities: authorities}, nil
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// プレフィックスは大文字小文字を区別して"Bearer "と完全一致する場合のみ受け付け、
// 残りは空白を含めてそのままトークンとして扱う。
func bearerToken(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	return raw, ok && raw != ""
}
