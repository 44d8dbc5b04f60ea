// Package token は署名付き本人確認トークン（JWT）の発行と検証を提供する。
//
// 署名鍵はプロセス起動時に1回だけ生成し、永続化もローテーションもしない。
// プロセスを再起動すると、それまでに発行したトークンはすべて検証できなくなる。
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TTL はトークンの有効期間。発行時刻から24時間で失効する。
	TTL = 24 * time.Hour

	// KeySize はHS512署名鍵のバイト長。
	KeySize = 64
)

// signingMethod はトークンの署名アルゴリズム。
var signingMethod = jwt.SigningMethodHS512

// GenerateKey はHS512用の暗号的に安全な署名鍵を生成する。
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, nil
}

// Claims はトークンから取り出した主張。
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テストで時刻を進めるために使う。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec は本人確認トークンの発行と検証を行う。
// 生成後は不変のため、複数goroutineから同時に利用できる。
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec はCodecを生成する。keyはKeySizeバイト以上でなければならない。
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) < KeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", KeySize, len(key))
	}

	c := &Codec{
		key: append([]byte(nil), key...),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue はsubjectを主体とするトークンを発行する。
// 同じsubjectでも呼び出しごとに異なるトークンになる。
func (c *Codec) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの構造、署名、有効期限をすべて検証する。
// 検証に失敗しても呼び出し元へはfalseを返すだけで、原因はログにのみ記録する。
func (c *Codec) Verify(tokenString string) bool {
	if _, err := c.Decode(tokenString); err != nil {
		var tokenErr *TokenError
		reason := ReasonInvalid
		if errors.As(err, &tokenErr) {
			reason = tokenErr.Reason
		}
		slog.Warn("token verification failed",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// DecodeSubject はトークンのsubjectを返す。
// トークンが不正・改ざん・期限切れの場合は*TokenErrorを返す。
func (c *Codec) DecodeSubject(tokenString string) (string, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Decode はトークンを検証し、主張を返す。
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, &TokenError{Reason: ReasonMalformed, Err: errors.New("empty token")}
	}

	registered := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, registered,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.key, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if registered.Subject == "" {
		return nil, &TokenError{Reason: ReasonMalformed, Err: errors.New("token has no subject")}
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}
