package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/finreport/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, login_id, credential_hash, enabled, is_direct_signup, roles, status, withdrawn_at, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount は1行をmodel.Accountに読み込む。
func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		account     model.Account
		roles       pq.StringArray
		status      string
		withdrawnAt sql.NullTime
	)
	err := row.Scan(
		&account.ID, &account.LoginID, &account.CredentialHash,
		&account.Enabled, &account.IsDirectSignup, &roles,
		&status, &withdrawnAt, &account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Roles = []string(roles)
	if model.AccountStatus(status) == model.AccountStatusWithdrawn && withdrawnAt.Valid {
		account.State = model.WithdrawnState(withdrawnAt.Time)
	} else {
		account.State = model.ActiveState()
	}
	return &account, nil
}

// FindByLoginID はlogin_idでアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByLoginID(ctx context.Context, loginID string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE login_id = $1`,
		loginID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by login ID: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。login_idが重複する場合はErrConflictを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	roles := account.Roles
	if len(roles) == 0 {
		roles = []string{model.RoleUser}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (login_id, credential_hash, enabled, is_direct_signup, roles)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		account.LoginID, account.CredentialHash, account.Enabled, account.IsDirectSignup, pq.Array(roles),
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %q already exists: %w", account.LoginID, ErrConflict)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	account.Roles = roles
	account.State = model.ActiveState()
	return nil
}

// UpdateCredential はパスワードハッシュを更新する。
func (r *PostgresAccountRepo) UpdateCredential(ctx context.Context, id int64, credentialHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET credential_hash = $2, updated_at = now() WHERE id = $1`,
		id, credentialHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return requireAffected(result, id)
}

// Enable はアカウントを有効化する。
func (r *PostgresAccountRepo) Enable(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET enabled = true, updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to enable account: %w", err)
	}
	return requireAffected(result, id)
}

// Withdraw は外部ID紐付けの削除と退会状態の保存を同一トランザクションで行う。
func (r *PostgresAccountRepo) Withdraw(ctx context.Context, account *model.Account) error {
	at, ok := account.State.WithdrawnAt()
	if !ok {
		return fmt.Errorf("account %d is not in withdrawn state", account.ID)
	}
	id := account.ID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM identity_links WHERE account_id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete identity links: %w", err)
	}

	// 退会済みトークンは不要になるため削除する
	_, err = tx.ExecContext(ctx,
		`DELETE FROM account_tokens WHERE account_id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account tokens: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET status = 'withdrawn', withdrawn_at = $2, enabled = false, updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to withdraw account: %w", err)
	}
	if err := requireAffected(result, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Authorities は利用中アカウントの権限一覧を返す。
func (r *PostgresAccountRepo) Authorities(ctx context.Context, loginID string) ([]string, error) {
	var roles pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT roles FROM accounts WHERE login_id = $1 AND status = 'active'`,
		loginID,
	).Scan(&roles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load authorities: %w", err)
	}
	return []string(roles), nil
}

// requireAffected は更新件数が0件の場合にErrNotFoundを返す。
func requireAffected(result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
