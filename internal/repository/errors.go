package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrConflict は一意制約違反により書き込みが拒否されたことを表す。
	// 同時に同じlogin_idや外部IDを作成しようとした場合に返る。
	ErrConflict = errors.New("repository: unique constraint conflict")

	// ErrNotFound は更新対象の行が存在しないことを表す。
	ErrNotFound = errors.New("repository: record not found")
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation pq.ErrorCode = "23505"

// isUniqueViolation はerrが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
