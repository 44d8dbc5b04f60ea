package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/finreport/internal/model"
)

func createTokenOwner(t *testing.T, repo *PostgresAccountRepo, loginID string) *model.Account {
	t.Helper()
	account := &model.Account{LoginID: loginID, CredentialHash: "x"}
	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("account Create returned error: %v", err)
	}
	return account
}

func TestPostgresAccountTokenRepo_ReplaceKeepsOnePerPurpose(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresAccountTokenRepo(db)
	owner := createTokenOwner(t, NewPostgresAccountRepo(db), "carol")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	first := &model.AccountToken{Token: "first", AccountID: owner.ID, Purpose: model.TokenPurposeEmailVerification, ExpiresAt: exp}
	if err := repo.Replace(ctx, first); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	second := &model.AccountToken{Token: "second", AccountID: owner.ID, Purpose: model.TokenPurposeEmailVerification, ExpiresAt: exp}
	if err := repo.Replace(ctx, second); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	old, err := repo.FindByToken(ctx, "first", model.TokenPurposeEmailVerification)
	if err != nil {
		t.Fatalf("FindByToken returned error: %v", err)
	}
	if old != nil {
		t.Error("replaced token should no longer be found")
	}

	got, err := repo.FindByToken(ctx, "second", model.TokenPurposeEmailVerification)
	if err != nil {
		t.Fatalf("FindByToken returned error: %v", err)
	}
	if got == nil || got.AccountID != owner.ID {
		t.Fatalf("unexpected token: %+v", got)
	}

	// 用途が異なる場合は見つからない
	other, err := repo.FindByToken(ctx, "second", model.TokenPurposePasswordReset)
	if err != nil {
		t.Fatalf("FindByToken returned error: %v", err)
	}
	if other != nil {
		t.Error("token must not match a different purpose")
	}
}

func TestPostgresAccountTokenRepo_DeleteAndDeleteExpired(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresAccountTokenRepo(db)
	accounts := NewPostgresAccountRepo(db)
	ctx := context.Background()
	now := time.Now()

	a := createTokenOwner(t, accounts, "dave")
	b := createTokenOwner(t, accounts, "erin")

	expired := &model.AccountToken{Token: "expired", AccountID: a.ID, Purpose: model.TokenPurposePasswordReset, ExpiresAt: now.Add(-time.Minute)}
	live := &model.AccountToken{Token: "live", AccountID: b.ID, Purpose: model.TokenPurposePasswordReset, ExpiresAt: now.Add(time.Hour)}
	for _, tok := range []*model.AccountToken{expired, live} {
		if err := repo.Replace(ctx, tok); err != nil {
			t.Fatalf("Replace returned error: %v", err)
		}
	}

	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d rows, want 1", n)
	}

	// 2回目は削除対象なし
	n, err = repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("second DeleteExpired removed %d rows, want 0", n)
	}

	if err := repo.Delete(ctx, "live"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, "live"); err != nil {
		t.Fatalf("Delete of missing token returned error: %v", err)
	}
	got, _ := repo.FindByToken(ctx, "live", model.TokenPurposePasswordReset)
	if got != nil {
		t.Error("deleted token should not be found")
	}
}
