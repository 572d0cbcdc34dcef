package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newsdesk/apiserver/types"
)

// Memory is a process-local store with the same behaviour as the Postgres
// repositories. It backs tests and DB_IN_MEMORY runs.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	nextAccountID  int
	nextCategoryID int
	nextArticleID  int

	accounts    map[int]types.Account
	permissions map[int]types.AuthorPermissions
	sessions    map[string]types.RefreshSession
	tokens      map[tokenKey]types.AccountToken
	categories  map[int]types.Category
	articles    map[int]types.Article
}

type tokenKey struct {
	accountID int
	purpose   types.TokenPurpose
}

func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		accounts:    make(map[int]types.Account),
		permissions: make(map[int]types.AuthorPermissions),
		sessions:    make(map[string]types.RefreshSession),
		tokens:      make(map[tokenKey]types.AccountToken),
		categories:  make(map[int]types.Category),
		articles:    make(map[int]types.Article),
	}
}

// SetClock replaces the time source used for timestamps and session expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Accounts() *MemoryAccounts       { return &MemoryAccounts{m: m} }
func (m *Memory) Permissions() *MemoryPermissions { return &MemoryPermissions{m: m} }
func (m *Memory) Sessions() *MemorySessions       { return &MemorySessions{m: m} }
func (m *Memory) Tokens() *MemoryTokens           { return &MemoryTokens{m: m} }
func (m *Memory) Categories() *MemoryCategories   { return &MemoryCategories{m: m} }
func (m *Memory) Articles() *MemoryArticles       { return &MemoryArticles{m: m} }

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// MemoryAccounts is the account view of a Memory store.
type MemoryAccounts struct {
	m *Memory
}

func (r *MemoryAccounts) GetByID(ctx context.Context, id int) (types.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	account, ok := r.m.accounts[id]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return account, nil
}

func (r *MemoryAccounts) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, account := range r.m.accounts {
		if account.Email != nil && strings.EqualFold(*account.Email, email) {
			return account, nil
		}
	}
	return types.Account{}, ErrNotFound
}

func (r *MemoryAccounts) GetByProvider(ctx context.Context, provider, subject string) (types.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, account := range r.m.accounts {
		if sameProvider(account, provider, subject) {
			return account, nil
		}
	}
	return types.Account{}, ErrNotFound
}

func sameProvider(account types.Account, provider, subject string) bool {
	return account.Provider != nil && account.ProviderAccountID != nil &&
		*account.Provider == provider && *account.ProviderAccountID == subject
}

func (r *MemoryAccounts) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := make([]types.Account, 0, len(r.m.accounts))
	for _, account := range r.m.accounts {
		all = append(all, account)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, offset, limit), len(all), nil
}

// conflicts reports whether account collides with a stored account other than itself.
func (r *MemoryAccounts) conflicts(account types.Account) bool {
	for id, existing := range r.m.accounts {
		if id == account.ID {
			continue
		}
		if account.Email != nil && existing.Email != nil && strings.EqualFold(*account.Email, *existing.Email) {
			return true
		}
		if account.Provider != nil && account.ProviderAccountID != nil &&
			sameProvider(existing, *account.Provider, *account.ProviderAccountID) {
			return true
		}
	}
	return false
}

func (r *MemoryAccounts) Create(ctx context.Context, account types.Account) (types.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	account.ID = 0
	if r.conflicts(account) {
		return types.Account{}, ErrConflict
	}
	r.m.nextAccountID++
	account.ID = r.m.nextAccountID
	now := r.m.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Role == "" {
		account.Role = types.RoleUser
	}
	r.m.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryAccounts) Update(ctx context.Context, account types.Account) (types.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.accounts[account.ID]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	if r.conflicts(account) {
		return types.Account{}, ErrConflict
	}
	account.Role = current.Role
	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = r.m.now()
	r.m.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryAccounts) Delete(ctx context.Context, id int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.accounts, id)
	delete(r.m.permissions, id)
	for jti, session := range r.m.sessions {
		if session.AccountID == id {
			delete(r.m.sessions, jti)
		}
	}
	for key := range r.m.tokens {
		if key.accountID == id {
			delete(r.m.tokens, key)
		}
	}
	for articleID, article := range r.m.articles {
		if article.AuthorID == id {
			delete(r.m.articles, articleID)
		}
	}
	return nil
}

func (r *MemoryAccounts) ChangeRole(ctx context.Context, id int, fn RoleChangeFunc) (types.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.accounts[id]
	if !ok {
		return types.Account{}, ErrNotFound
	}

	tx := &memoryRoleTx{}
	role, err := fn(ctx, tx, current)
	if err != nil {
		return types.Account{}, err
	}

	for _, op := range tx.ops {
		op(r.m)
	}
	account := r.m.accounts[id]
	if role != account.Role {
		account.Role = role
		account.UpdatedAt = r.m.now()
		r.m.accounts[id] = account
	}
	return account, nil
}

// memoryRoleTx stages writes and applies them only when the role change succeeds.
type memoryRoleTx struct {
	ops []func(m *Memory)
}

func (t *memoryRoleTx) InsertPermissions(ctx context.Context, perms types.AuthorPermissions) error {
	t.ops = append(t.ops, func(m *Memory) { m.permissions[perms.AccountID] = perms })
	return nil
}

func (t *memoryRoleTx) DeletePermissions(ctx context.Context, accountID int) error {
	t.ops = append(t.ops, func(m *Memory) { delete(m.permissions, accountID) })
	return nil
}

func (t *memoryRoleTx) ClearAvatar(ctx context.Context, accountID int) error {
	t.ops = append(t.ops, func(m *Memory) {
		if account, ok := m.accounts[accountID]; ok {
			account.Avatar = nil
			m.accounts[accountID] = account
		}
	})
	return nil
}

// MemoryPermissions is the author permissions view of a Memory store.
type MemoryPermissions struct {
	m *Memory
}

func (r *MemoryPermissions) Get(ctx context.Context, accountID int) (types.AuthorPermissions, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	perms, ok := r.m.permissions[accountID]
	if !ok {
		return types.AuthorPermissions{}, ErrNotFound
	}
	return perms, nil
}

func (r *MemoryPermissions) Update(ctx context.Context, perms types.AuthorPermissions) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.permissions[perms.AccountID]; !ok {
		return ErrNotFound
	}
	r.m.permissions[perms.AccountID] = perms
	return nil
}

// MemorySessions is the refresh session view of a Memory store.
type MemorySessions struct {
	m *Memory
}

func (r *MemorySessions) Create(ctx context.Context, session types.RefreshSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[session.ID]; ok {
		return ErrConflict
	}
	r.m.sessions[session.ID] = session
	return nil
}

func (r *MemorySessions) Consume(ctx context.Context, id string, now time.Time) (types.RefreshSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[id]
	if !ok || !session.ExpiresAt.After(now) {
		return types.RefreshSession{}, ErrNotFound
	}
	delete(r.m.sessions, id)
	return session, nil
}

func (r *MemorySessions) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sessions, id)
	return nil
}

func (r *MemorySessions) DeleteByAccount(ctx context.Context, accountID int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for jti, session := range r.m.sessions {
		if session.AccountID == accountID {
			delete(r.m.sessions, jti)
		}
	}
	return nil
}

func (r *MemorySessions) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var removed int64
	for jti, session := range r.m.sessions {
		if !session.ExpiresAt.After(before) {
			delete(r.m.sessions, jti)
			removed++
		}
	}
	return removed, nil
}

// MemoryTokens is the account token view of a Memory store.
type MemoryTokens struct {
	m *Memory
}

func (r *MemoryTokens) Put(ctx context.Context, token types.AccountToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.tokens[tokenKey{accountID: token.AccountID, purpose: token.Purpose}] = token
	return nil
}

func (r *MemoryTokens) Exists(ctx context.Context, accountID int, purpose types.TokenPurpose, value string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	token, ok := r.m.tokens[tokenKey{accountID: accountID, purpose: purpose}]
	return ok && token.Token == value, nil
}

func (r *MemoryTokens) Consume(ctx context.Context, accountID int, purpose types.TokenPurpose, value string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := tokenKey{accountID: accountID, purpose: purpose}
	token, ok := r.m.tokens[key]
	if !ok || token.Token != value {
		return ErrNotFound
	}
	delete(r.m.tokens, key)
	return nil
}

// MemoryCategories is the category view of a Memory store.
type MemoryCategories struct {
	m *Memory
}

func (r *MemoryCategories) List(ctx context.Context, offset, limit int) ([]types.Category, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := make([]types.Category, 0, len(r.m.categories))
	for _, category := range r.m.categories {
		all = append(all, category)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, offset, limit), len(all), nil
}

func (r *MemoryCategories) Get(ctx context.Context, id int) (types.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	category, ok := r.m.categories[id]
	if !ok {
		return types.Category{}, ErrNotFound
	}
	return category, nil
}

func (r *MemoryCategories) nameTaken(name string, except int) bool {
	for id, category := range r.m.categories {
		if id != except && category.Name == name {
			return true
		}
	}
	return false
}

func (r *MemoryCategories) Create(ctx context.Context, category types.Category) (types.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.nameTaken(category.Name, 0) {
		return types.Category{}, ErrConflict
	}
	r.m.nextCategoryID++
	category.ID = r.m.nextCategoryID
	now := r.m.now()
	category.CreatedAt = now
	category.UpdatedAt = now
	r.m.categories[category.ID] = category
	return category, nil
}

func (r *MemoryCategories) Update(ctx context.Context, category types.Category) (types.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.categories[category.ID]
	if !ok {
		return types.Category{}, ErrNotFound
	}
	if r.nameTaken(category.Name, category.ID) {
		return types.Category{}, ErrConflict
	}
	category.CreatedAt = current.CreatedAt
	category.UpdatedAt = r.m.now()
	r.m.categories[category.ID] = category
	return category, nil
}

func (r *MemoryCategories) Delete(ctx context.Context, id int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.categories[id]; !ok {
		return ErrNotFound
	}
	for _, article := range r.m.articles {
		if article.CategoryID == id {
			return ErrConflict
		}
	}
	delete(r.m.categories, id)
	return nil
}

// MemoryArticles is the article view of a Memory store.
type MemoryArticles struct {
	m *Memory
}

func (r *MemoryArticles) List(ctx context.Context, filter types.ArticleFilter, offset, limit int) ([]types.Article, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := make([]types.Article, 0, len(r.m.articles))
	for _, article := range r.m.articles {
		if filter.CategoryID > 0 && article.CategoryID != filter.CategoryID {
			continue
		}
		if filter.AuthorID > 0 && article.AuthorID != filter.AuthorID {
			continue
		}
		all = append(all, article)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, offset, limit), len(all), nil
}

func (r *MemoryArticles) Get(ctx context.Context, id int) (types.Article, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	article, ok := r.m.articles[id]
	if !ok {
		return types.Article{}, ErrNotFound
	}
	return article, nil
}

func (r *MemoryArticles) Create(ctx context.Context, article types.Article) (types.Article, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.categories[article.CategoryID]; !ok {
		return types.Article{}, ErrConflict
	}
	r.m.nextArticleID++
	article.ID = r.m.nextArticleID
	now := r.m.now()
	article.CreatedAt = now
	article.UpdatedAt = now
	r.m.articles[article.ID] = article
	return article, nil
}

func (r *MemoryArticles) Update(ctx context.Context, article types.Article) (types.Article, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.articles[article.ID]
	if !ok {
		return types.Article{}, ErrNotFound
	}
	if _, ok := r.m.categories[article.CategoryID]; !ok {
		return types.Article{}, ErrConflict
	}
	article.AuthorID = current.AuthorID
	article.CreatedAt = current.CreatedAt
	article.UpdatedAt = r.m.now()
	r.m.articles[article.ID] = article
	return article, nil
}

func (r *MemoryArticles) Delete(ctx context.Context, id int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.articles[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.articles, id)
	return nil
}
