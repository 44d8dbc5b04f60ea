package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/finreport/internal/model"
	"github.com/hitoshi/finreport/internal/repository"
)

// memStore はアカウントと紐付けを保持するインメモリのリポジトリ。
// 一意制約の違反はrepository.ErrConflictで返す。
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	accounts   map[string]*model.Account
	identities map[string]*model.Identity

	// 失敗注入用フック。nilでなければ本処理の前に呼ばれる。
	beforeCreateIdentity func(identity *model.Identity) error
	beforeCreateAccount  func(account *model.Account) error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[string]*model.Account),
		identities: make(map[string]*model.Identity),
	}
}

func identityKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (s *memStore) FindByLoginID(_ context.Context, loginID string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[loginID]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (s *memStore) FindByID(_ context.Context, id int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) Create(_ context.Context, account *model.Account) error {
	if s.beforeCreateAccount != nil {
		if err := s.beforeCreateAccount(account); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.LoginID]; ok {
		return repository.ErrConflict
	}
	s.nextID++
	account.ID = s.nextID
	account.CreatedAt = time.Now()
	account.State = model.ActiveState()
	copied := *account
	s.accounts[account.LoginID] = &copied
	return nil
}

func (s *memStore) UpdateCredential(_ context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			a.CredentialHash = hash
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memStore) Enable(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id && !a.State.IsWithdrawn() {
			a.Enabled = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memStore) Withdraw(_ context.Context, account *model.Account) error {
	if !account.State.IsWithdrawn() {
		return errors.New("account is not in withdrawn state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == account.ID && !a.State.IsWithdrawn() {
			a.State = account.State
			a.Enabled = account.Enabled
			for k, link := range s.identities {
				if link.AccountID == account.ID {
					delete(s.identities, k)
				}
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memStore) Authorities(_ context.Context, loginID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[loginID]
	if !ok || a.State.IsWithdrawn() {
		return nil, nil
	}
	return a.Roles, nil
}

// identityRepo はmemStoreをIdentityRepositoryとして公開する。
func (s *memStore) identityRepo() *memIdentityRepo {
	return &memIdentityRepo{s: s}
}

type memIdentityRepo struct {
	s *memStore
}

func (r *memIdentityRepo) FindByProviderAndProviderUserID(_ context.Context, provider, providerUserID string) (*model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	link, ok := r.s.identities[identityKey(provider, providerUserID)]
	if !ok {
		return nil, nil
	}
	copied := *link
	return &copied, nil
}

func (r *memIdentityRepo) Create(_ context.Context, identity *model.Identity) error {
	if r.s.beforeCreateIdentity != nil {
		if err := r.s.beforeCreateIdentity(identity); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := identityKey(identity.Provider, identity.ProviderUserID)
	if _, ok := r.s.identities[key]; ok {
		return repository.ErrConflict
	}
	r.s.nextID++
	identity.ID = r.s.nextID
	copied := *identity
	r.s.identities[key] = &copied
	return nil
}

func (s *memStore) accountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *memStore) identityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

// mockProvider は関数フィールドで振る舞いを差し替えるOAuthProvider。
type mockProvider struct {
	authCodeURLFn  func(state string) string
	fetchProfileFn func(ctx context.Context, code string) (map[string]any, error)
}

func (m *mockProvider) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return ""
}

func (m *mockProvider) FetchProfile(ctx context.Context, code string) (map[string]any, error) {
	if m.fetchProfileFn != nil {
		return m.fetchProfileFn(ctx, code)
	}
	return nil, nil
}

// stubIssuer はsubjectをそのまま埋め込んだトークンを返す。
type stubIssuer struct {
	err error
}

func (s *stubIssuer) Issue(subject string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-for-" + subject, nil
}

// fastHash はテスト用の軽量なハッシュ関数。
func fastHash(password string) (string, error) {
	return "hashed:" + password, nil
}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*memStore)(nil)
var _ repository.IdentityRepository = (*memIdentityRepo)(nil)
var _ OAuthProvider = (*mockProvider)(nil)
var _ TokenIssuer = (*stubIssuer)(nil)
