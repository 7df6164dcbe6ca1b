package services

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/config"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/logging"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/password"
	clientsrepo "github.com/rustproof/rustproof/internal/repositories/clients"
	identitiesrepo "github.com/rustproof/rustproof/internal/repositories/identities"
	ottrepo "github.com/rustproof/rustproof/internal/repositories/onetimetokens"
	historyrepo "github.com/rustproof/rustproof/internal/repositories/passwordhistory"
	refreshrepo "github.com/rustproof/rustproof/internal/repositories/refreshtokens"
	sessionsrepo "github.com/rustproof/rustproof/internal/repositories/sessions"
	usersrepo "github.com/rustproof/rustproof/internal/repositories/users"
	"github.com/rustproof/rustproof/internal/tokens"
)

// --- helpers ---

// cheap argon2 parameters so each hash costs microseconds, not milliseconds.
var testHashParams = password.Params{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

// expectTx registers expectations for n committed transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AccessTokenValidityDuration = time.Hour
	cfg.RefreshTokenValidityDuration = 24 * time.Hour
	cfg.RefreshReuseInterval = 10 * time.Second
	return cfg
}

func newAuthService(t *testing.T, db *sql.DB, rm *fakeRepoManager, cfg *config.Config, ml *fakeMailer) *AuthService {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if ml == nil {
		ml = &fakeMailer{}
	}
	ring := tokens.NewKeyRing(tokens.SigningKey{KID: "test", Alg: "HS256", Secret: []byte("test-secret-0123456789abcdef")})
	ts := tokens.NewService(tokens.Config{
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		AccessTokenTTL:  cfg.AccessTokenValidityDuration,
		RefreshTokenTTL: cfg.RefreshTokenValidityDuration,
		Leeway:          cfg.JWTLeeway,
	}, ring)

	s := NewAuthService(db, rm, cfg, ts, ml, noopLogger{})
	s.hashParams = testHashParams
	s.sentinel = password.SentinelHash(testHashParams)
	return s
}

func mustHash(t *testing.T, plaintext string) string {
	t.Helper()
	h, err := password.Hash(plaintext, testHashParams)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	return h
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}
func (noopLogger) With(...any) logging.Logger            { return noopLogger{} }

type sentMail struct {
	Email     string
	TokenType models.TokenType
	Secret    string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, email string, typ models.TokenType, secret string) error {
	m.sent = append(m.sent, sentMail{Email: email, TokenType: typ, Secret: secret})
	return nil
}

// --- stateful in-memory repositories ---

type fakeUsersRepo struct {
	rows map[uuid.UUID]*models.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{rows: map[uuid.UUID]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	for _, row := range f.rows {
		if row.Email == u.Email {
			return nil, common.ErrUserAlreadyExists
		}
	}
	row := *u
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	f.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, row := range f.rows {
		if row.Email == email {
			out := *row
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) ExistsByID(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeUsersRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, row := range f.rows {
		if row.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsersRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	row, ok := f.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.EncryptedPassword = hash
	return nil
}

func (f *fakeUsersRepo) UpdateConfirmed(_ context.Context, id uuid.UUID, at time.Time) error {
	row, ok := f.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.ConfirmedAt = &at
	return nil
}

func (f *fakeUsersRepo) UpdateBannedUntil(_ context.Context, id uuid.UUID, until *time.Time) error {
	row, ok := f.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.BannedUntil = until
	return nil
}

func (f *fakeUsersRepo) UpdateEmail(_ context.Context, id uuid.UUID, email string) error {
	for other, row := range f.rows {
		if other != id && row.Email == email {
			return common.ErrUserAlreadyExists
		}
	}
	row, ok := f.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.Email = email
	return nil
}

func (f *fakeUsersRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeUsersRepo) List(_ context.Context, page, perPage int) ([]*models.User, int, error) {
	var all []*models.User
	for _, row := range f.rows {
		out := *row
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

type fakeIdentitiesRepo struct {
	rows map[uuid.UUID]*models.Identity
}

func newFakeIdentitiesRepo() *fakeIdentitiesRepo {
	return &fakeIdentitiesRepo{rows: map[uuid.UUID]*models.Identity{}}
}

func (f *fakeIdentitiesRepo) Create(_ context.Context, id *models.Identity) (*models.Identity, error) {
	for _, row := range f.rows {
		if row.Type == id.Type && row.Value == id.Value {
			return nil, common.ErrConflict
		}
	}
	row := *id
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	f.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (f *fakeIdentitiesRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (f *fakeIdentitiesRepo) GetByTypeAndValue(_ context.Context, typ models.IdentityType, value string) (*models.Identity, error) {
	for _, row := range f.rows {
		if row.Type == typ && row.Value == value {
			out := *row
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeIdentitiesRepo) Exists(_ context.Context, typ models.IdentityType, value string) (bool, error) {
	for _, row := range f.rows {
		if row.Type == typ && row.Value == value {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIdentitiesRepo) UpdateVerification(_ context.Context, id uuid.UUID, verified bool) error {
	row, ok := f.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.Verified = verified
	return nil
}

func (f *fakeIdentitiesRepo) Unlink(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeIdentitiesRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Identity, error) {
	var out []*models.Identity
	for _, row := range f.rows {
		if row.UserID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIdentitiesRepo) RemoveUnverifiedByUser(_ context.Context, userID uuid.UUID) error {
	for id, row := range f.rows {
		if row.UserID == userID && !row.Verified {
			delete(f.rows, id)
		}
	}
	return nil
}

type fakeSessionsRepo struct {
	rows map[uuid.UUID]*models.Session
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{rows: map[uuid.UUID]*models.Session{}}
}

func (f *fakeSessionsRepo) Create(_ context.Context, p sessionsrepo.CreateParams) (*models.Session, error) {
	row := &models.Session{
		ID:        uuid.New(),
		UserID:    p.UserID,
		FactorID:  p.FactorID,
		AAL:       p.AAL,
		NotAfter:  p.NotAfter,
		UserAgent: p.UserAgent,
		IP:        p.IP,
		Tag:       p.Tag,
		CreatedAt: time.Now(),
	}
	f.rows[row.ID] = row
	out := *row
	return &out, nil
}

func (f *fakeSessionsRepo) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (f *fakeSessionsRepo) UpdateRefreshedAt(_ context.Context, id uuid.UUID, at time.Time) error {
	row, ok := f.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.RefreshedAt = &at
	return nil
}

func (f *fakeSessionsRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeSessionsRepo) DeleteAllForUser(_ context.Context, userID uuid.UUID) error {
	for id, row := range f.rows {
		if row.UserID == userID {
			delete(f.rows, id)
		}
	}
	return nil
}

type fakeRefreshTokensRepo struct {
	rows map[uuid.UUID]*models.RefreshToken
}

func newFakeRefreshTokensRepo() *fakeRefreshTokensRepo {
	return &fakeRefreshTokensRepo{rows: map[uuid.UUID]*models.RefreshToken{}}
}

func (f *fakeRefreshTokensRepo) Store(_ context.Context, p refreshrepo.StoreParams) (*models.RefreshToken, error) {
	if p.ParentTokenID != nil {
		for _, row := range f.rows {
			if row.ParentTokenID != nil && *row.ParentTokenID == *p.ParentTokenID && !row.Revoked {
				return nil, common.ErrConflict
			}
		}
	}
	row := &models.RefreshToken{
		ID:            uuid.New(),
		UserID:        p.UserID,
		Token:         p.Token,
		ParentTokenID: p.ParentTokenID,
		SessionID:     p.SessionID,
		InstanceID:    p.InstanceID,
		CreatedAt:     time.Now(),
	}
	f.rows[row.ID] = row
	out := *row
	return &out, nil
}

func (f *fakeRefreshTokensRepo) Find(_ context.Context, secret string) (*models.RefreshToken, error) {
	for _, row := range f.rows {
		if row.Token == secret {
			out := *row
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeRefreshTokensRepo) FindChild(_ context.Context, parentID uuid.UUID) (*models.RefreshToken, error) {
	for _, row := range f.rows {
		if row.ParentTokenID != nil && *row.ParentTokenID == parentID {
			out := *row
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeRefreshTokensRepo) Revoke(_ context.Context, secret string) error {
	for _, row := range f.rows {
		if row.Token == secret {
			row.Revoked = true
		}
	}
	return nil
}

func (f *fakeRefreshTokensRepo) RevokeByID(_ context.Context, id uuid.UUID) error {
	if row, ok := f.rows[id]; ok {
		row.Revoked = true
	}
	return nil
}

func (f *fakeRefreshTokensRepo) RevokeChain(_ context.Context, id uuid.UUID) error {
	row, ok := f.rows[id]
	if !ok {
		return nil
	}
	// walk to the root
	root := row
	for root.ParentTokenID != nil {
		parent, ok := f.rows[*root.ParentTokenID]
		if !ok {
			break
		}
		root = parent
	}
	// revoke root and every descendant
	frontier := []uuid.UUID{root.ID}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		f.rows[cur].Revoked = true
		for _, candidate := range f.rows {
			if candidate.ParentTokenID != nil && *candidate.ParentTokenID == cur {
				frontier = append(frontier, candidate.ID)
			}
		}
	}
	return nil
}

func (f *fakeRefreshTokensRepo) RevokeAllForSession(_ context.Context, sessionID uuid.UUID) error {
	for _, row := range f.rows {
		if row.SessionID == sessionID {
			row.Revoked = true
		}
	}
	return nil
}

func (f *fakeRefreshTokensRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	for _, row := range f.rows {
		if row.UserID == userID {
			row.Revoked = true
		}
	}
	return nil
}

type fakeOneTimeTokensRepo struct {
	rows map[uuid.UUID]*models.OneTimeToken

	// markUsedHook, when set, runs once before the next MarkUsed. Tests use
	// it to interleave a competing consumer between Validate and MarkUsed.
	markUsedHook func()
}

func newFakeOneTimeTokensRepo() *fakeOneTimeTokensRepo {
	return &fakeOneTimeTokensRepo{rows: map[uuid.UUID]*models.OneTimeToken{}}
}

func (f *fakeOneTimeTokensRepo) Store(_ context.Context, token *models.OneTimeToken) (*models.OneTimeToken, error) {
	if token.UserID != nil {
		for _, row := range f.rows {
			if row.UserID != nil && *row.UserID == *token.UserID && row.TokenType == token.TokenType && row.Live() {
				row.Revoked = true
			}
		}
	}
	row := *token
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	f.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (f *fakeOneTimeTokensRepo) Validate(_ context.Context, secret string, typ models.TokenType) (*models.OneTimeToken, error) {
	for _, row := range f.rows {
		if row.Secret == secret && row.TokenType == typ && row.Live() {
			out := *row
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeOneTimeTokensRepo) Revoke(_ context.Context, secret string) error {
	for _, row := range f.rows {
		if row.Secret == secret {
			row.Revoked = true
		}
	}
	return nil
}

func (f *fakeOneTimeTokensRepo) MarkUsed(_ context.Context, id uuid.UUID) error {
	if f.markUsedHook != nil {
		hook := f.markUsedHook
		f.markUsedHook = nil
		hook()
	}
	row, ok := f.rows[id]
	if !ok || row.Used || row.Revoked {
		return common.ErrNotFound
	}
	row.Used = true
	return nil
}

func (f *fakeOneTimeTokensRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	for id, row := range f.rows {
		if !time.Now().Before(row.ExpiresAt) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type fakePasswordHistoryRepo struct {
	rows []*models.PasswordHistoryEntry
}

func (f *fakePasswordHistoryRepo) Add(_ context.Context, userID uuid.UUID, hash string) error {
	f.rows = append(f.rows, &models.PasswordHistoryEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Hash:      hash,
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakePasswordHistoryRepo) ListRecent(_ context.Context, userID uuid.UUID, limit int) ([]*models.PasswordHistoryEntry, error) {
	var out []*models.PasswordHistoryEntry
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakePasswordHistoryRepo) Prune(_ context.Context, userID uuid.UUID, keep int) error {
	var kept []*models.PasswordHistoryEntry
	seen := 0
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID != userID {
			kept = append(kept, f.rows[i])
			continue
		}
		if seen < keep {
			kept = append(kept, f.rows[i])
			seen++
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	f.rows = kept
	return nil
}

type fakeClientsRepo struct {
	rows map[string]*models.ServiceClient
}

func newFakeClientsRepo() *fakeClientsRepo {
	return &fakeClientsRepo{rows: map[string]*models.ServiceClient{}}
}

func (f *fakeClientsRepo) Create(_ context.Context, c *models.ServiceClient) (*models.ServiceClient, error) {
	if _, ok := f.rows[c.ClientID]; ok {
		return nil, common.ErrConflict
	}
	row := *c
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	f.rows[row.ClientID] = &row
	out := row
	return &out, nil
}

func (f *fakeClientsRepo) GetByClientID(_ context.Context, clientID string) (*models.ServiceClient, error) {
	row, ok := f.rows[clientID]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *row
	return &out, nil
}

// fakeRepoManager vends the same in-memory repos regardless of the DBTX,
// which mirrors how the real manager re-binds repos to a transaction.
type fakeRepoManager struct {
	users      *fakeUsersRepo
	identities *fakeIdentitiesRepo
	sessions   *fakeSessionsRepo
	refresh    *fakeRefreshTokensRepo
	ott        *fakeOneTimeTokensRepo
	history    *fakePasswordHistoryRepo
	clients    *fakeClientsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:      newFakeUsersRepo(),
		identities: newFakeIdentitiesRepo(),
		sessions:   newFakeSessionsRepo(),
		refresh:    newFakeRefreshTokensRepo(),
		ott:        newFakeOneTimeTokensRepo(),
		history:    &fakePasswordHistoryRepo{},
		clients:    newFakeClientsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository               { return m.users }
func (m *fakeRepoManager) Identities(dbx.DBTX) identitiesrepo.Repository    { return m.identities }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessionsrepo.Repository        { return m.sessions }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshrepo.Repository    { return m.refresh }
func (m *fakeRepoManager) OneTimeTokens(dbx.DBTX) ottrepo.Repository        { return m.ott }
func (m *fakeRepoManager) PasswordHistory(dbx.DBTX) historyrepo.Repository  { return m.history }
func (m *fakeRepoManager) Clients(dbx.DBTX) clientsrepo.Repository          { return m.clients }
