package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/finreport/internal/model"
)

// PostgresAccountTokenRepo はPostgreSQLを使用したメール送付トークンリポジトリ。
type PostgresAccountTokenRepo struct {
	db *sql.DB
}

// NewPostgresAccountTokenRepo はPostgresAccountTokenRepoを生成する。
func NewPostgresAccountTokenRepo(db *sql.DB) *PostgresAccountTokenRepo {
	return &PostgresAccountTokenRepo{db: db}
}

// Replace は同じアカウント・用途の既存トークンを置き換えて保存する。
func (r *PostgresAccountTokenRepo) Replace(ctx context.Context, token *model.AccountToken) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO account_tokens (token, account_id, purpose, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, purpose)
		 DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, created_at = now()
		 RETURNING created_at`,
		token.Token, token.AccountID, string(token.Purpose), token.ExpiresAt,
	).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account token: %w", err)
	}
	return nil
}

// FindByToken はトークン文字列と用途で検索する。見つからない場合はnilを返す。
func (r *PostgresAccountTokenRepo) FindByToken(ctx context.Context, token string, purpose model.TokenPurpose) (*model.AccountToken, error) {
	t := &model.AccountToken{}
	var p string
	err := r.db.QueryRowContext(ctx,
		`SELECT token, account_id, purpose, expires_at, created_at
		 FROM account_tokens
		 WHERE token = $1 AND purpose = $2`,
		token, string(purpose),
	).Scan(&t.Token, &t.AccountID, &p, &t.ExpiresAt, &t.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account token: %w", err)
	}

	t.Purpose = model.TokenPurpose(p)
	return t, nil
}

// Delete はトークンを削除する。存在しない場合も成功とする。
func (r *PostgresAccountTokenRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM account_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete account token: %w", err)
	}
	return nil
}

// DeleteExpired はnow時点で期限切れのトークンを削除し、削除件数を返す。
func (r *PostgresAccountTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM account_tokens WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired account tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ AccountTokenRepository = (*PostgresAccountTokenRepo)(nil)
