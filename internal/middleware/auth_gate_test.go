package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/finreport/internal/token"
)

// mockAuthorityLoader は関数フィールドで振る舞いを差し替えるAuthorityLoader。
type mockAuthorityLoader struct {
	authoritiesFn func(ctx context.Context, subject string) ([]string, error)
}

func (m *mockAuthorityLoader) Authorities(ctx context.Context, subject string) ([]string, error) {
	if m.authoritiesFn != nil {
		return m.authoritiesFn(ctx, subject)
	}
	return nil, nil
}

// mockSubjectDecoder は関数フィールドで振る舞いを差し替えるSubjectDecoder。
type mockSubjectDecoder struct {
	decodeFn func(raw string) (string, error)
}

func (m *mockSubjectDecoder) DecodeSubject(raw string) (string, error) {
	return m.decodeFn(raw)
}

var _ AuthorityLoader = (*mockAuthorityLoader)(nil)
var _ SubjectDecoder = (*mockSubjectDecoder)(nil)
var _ SubjectDecoder = (*token.Codec)(nil)

func newTestCodec(t *testing.T, opts ...token.Option) *token.Codec {
	t.Helper()
	key, err := token.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey returned error: %v", err)
	}
	codec, err := token.NewCodec(key, opts...)
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	return codec
}

func mustIssue(t *testing.T, codec *token.Codec, subject string) string {
	t.Helper()
	tok, err := codec.Issue(subject)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	return tok
}

// captureHandler は後続ハンドラーに届いた認証主体を記録する。
type captureHandler struct {
	called    bool
	principal *Principal
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.principal, _ = PrincipalFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func serveGate(gate func(http.Handler) http.Handler, path, authorization string) (*captureHandler, *httptest.ResponseRecorder) {
	next := &captureHandler{}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	gate(next).ServeHTTP(w, req)
	return next, w
}

func TestRequestGate_PublicPath_NoHeader_PassesWithoutPrincipal(t *testing.T) {
	gate := NewRequestGate(newTestCodec(t), nil, NewPathMatcher(DefaultPublicPaths))

	next, w := serveGate(gate, "/api/user/login", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !next.called {
		t.Fatal("expected downstream handler to be called")
	}
	if next.principal != nil {
		t.Errorf("expected empty security context, got %+v", next.principal)
	}
}

func TestRequestGate_ValidToken_AttachesSubject(t *testing.T) {
	codec := newTestCodec(t)
	loader := &mockAuthorityLoader{
		authoritiesFn: func(_ context.Context, subject string) ([]string, error) {
			if subject != "alice" {
				t.Errorf("subject = %q, want alice", subject)
			}
			return []string{"USER"}, nil
		},
	}
	gate := NewRequestGate(codec, loader, NewPathMatcher(DefaultPublicPaths))

	next, _ := serveGate(gate, "/api/user/me", "Bearer "+mustIssue(t, codec, "alice"))

	if next.principal == nil {
		t.Fatal("expected principal in context")
	}
	if next.principal.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", next.principal.Subject, "alice")
	}
	if !next.principal.HasAuthority("USER") {
		t.Errorf("Authorities = %v, want [USER]", next.principal.Authorities)
	}
}

func TestRequestGate_NonLiteralBearerPrefix_PassesWithoutPrincipal(t *testing.T) {
	codec := newTestCodec(t)
	gate := NewRequestGate(codec, nil, nil)
	tok := mustIssue(t, codec, "alice")

	tests := []struct {
		name   string
		header string
	}{
		{"lowercase scheme", "bearer " + tok},
		{"uppercase scheme", "BEARER " + tok},
		{"extra spaces", "Bearer    " + tok + "  "},
		{"trailing space", "Bearer " + tok + " "},
		{"no space", "Bearer" + tok},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, rec := serveGate(gate, "/api/user/me", tt.header)

			if !next.called {
				t.Fatal("expected next handler to be called")
			}
			if next.principal != nil {
				t.Errorf("expected no principal, got %+v", next.principal)
			}
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestRequestGate_InvalidTokens_PassWithoutPrincipal(t *testing.T) {
	codec := newTestCodec(t)
	other := newTestCodec(t)
	past := newTestCodec(t, token.WithClock(func() time.Time { return time.Now().Add(-25 * time.Hour) }))

	valid := mustIssue(t, codec, "alice")
	tampered := valid[:len(valid)-4] + "AAAA"
	if tampered == valid {
		tampered = valid[:len(valid)-4] + "BBBB"
	}

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"non-bearer scheme", "Basic YWxpY2U6cHc="},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer garbage"},
		{"other key", "Bearer " + mustIssue(t, other, "alice")},
		{"expired", "Bearer " + mustIssue(t, past, "alice")},
		{"tampered", "Bearer " + tampered},
	}

	gate := NewRequestGate(codec, nil, NewPathMatcher(DefaultPublicPaths))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, w := serveGate(gate, "/api/user/me", tt.header)

			if !next.called {
				t.Fatal("request should reach downstream handler")
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if next.principal != nil {
				t.Errorf("expected empty security context, got %+v", next.principal)
			}
		})
	}
}

func TestRequestGate_AuthorityLoaderError_Returns401(t *testing.T) {
	codec := newTestCodec(t)
	loader := &mockAuthorityLoader{
		authoritiesFn: func(context.Context, string) ([]string, error) {
			return nil, errors.New("db down")
		},
	}
	gate := NewRequestGate(codec, loader, nil)

	next, w := serveGate(gate, "/api/user/me", "Bearer "+mustIssue(t, codec, "alice"))

	if next.called {
		t.Error("downstream handler must not be called")
	}
	assertAuthRequiredBody(t, w)
}

func TestRequestGate_DecoderPanic_Returns401(t *testing.T) {
	decoder := &mockSubjectDecoder{
		decodeFn: func(string) (string, error) {
			panic("unexpected")
		},
	}
	gate := NewRequestGate(decoder, nil, nil)

	next, w := serveGate(gate, "/api/user/me", "Bearer anything")

	if next.called {
		t.Error("downstream handler must not be called")
	}
	assertAuthRequiredBody(t, w)
}

func TestRequestGate_NonTokenDecoderError_Returns401(t *testing.T) {
	decoder := &mockSubjectDecoder{
		decodeFn: func(string) (string, error) {
			return "", errors.New("keystore unavailable")
		},
	}
	gate := NewRequestGate(decoder, nil, nil)

	_, w := serveGate(gate, "/api/user/me", "Bearer anything")

	assertAuthRequiredBody(t, w)
}

func TestRequestGate_PublicPath_SkipsVerification(t *testing.T) {
	decoder := &mockSubjectDecoder{
		decodeFn: func(string) (string, error) {
			t.Error("decoder must not be called for public paths")
			return "", nil
		},
	}
	gate := NewRequestGate(decoder, nil, NewPathMatcher(DefaultPublicPaths))

	next, _ := serveGate(gate, "/oauth2/authorization/google", "Bearer something")

	if !next.called || next.principal != nil {
		t.Errorf("public path should pass through without principal: called=%v principal=%+v", next.called, next.principal)
	}
}

func assertAuthRequiredBody(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Error("message should not be empty")
	}
}
