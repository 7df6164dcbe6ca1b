package services

import (
	"context"
	"testing"
	"time"

	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConfirmedUser(t *testing.T, rm *fakeRepoManager, email, plaintext string) *models.User {
	t.Helper()
	now := time.Now()
	user, err := rm.users.Create(context.Background(), &models.User{
		Aud:               "authenticated",
		Role:              "authenticated",
		Email:             email,
		EncryptedPassword: mustHash(t, plaintext),
		ConfirmedAt:       &now,
	})
	require.NoError(t, err)
	return user
}

func TestPasswordGrant_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTx(mock, 1)

	rm := newFakeRepoManager()
	user := seedConfirmedUser(t, rm, "a@example.com", "correct horse")
	s := newAuthService(t, db, rm, nil, nil)

	pair, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "A@example.com", Password: "correct horse", UserAgent: "curl/8.0", IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := s.ValidateToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	require.Len(t, rm.sessions.rows, 1)
	for _, session := range rm.sessions.rows {
		assert.Equal(t, models.AAL1, session.AAL)
		assert.Equal(t, "curl/8.0", session.UserAgent)
	}
}

func TestPasswordGrant_WrongPassword(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	seedConfirmedUser(t, rm, "a@example.com", "correct horse")
	s := newAuthService(t, db, rm, nil, nil)

	_, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, common.ErrWrongCredentials)
	assert.Empty(t, rm.sessions.rows)
}

func TestPasswordGrant_UnknownEmailSameError(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newFakeRepoManager(), nil, nil)

	_, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, common.ErrWrongCredentials)
}

func TestPasswordGrant_Banned(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	user := seedConfirmedUser(t, rm, "a@example.com", "correct horse")
	until := time.Now().Add(time.Hour)
	require.NoError(t, rm.users.UpdateBannedUntil(context.Background(), user.ID, &until))

	s := newAuthService(t, db, rm, nil, nil)

	_, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "a@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, common.ErrUserBanned)
}

func TestPasswordGrant_BanExpired(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTx(mock, 1)

	rm := newFakeRepoManager()
	user := seedConfirmedUser(t, rm, "a@example.com", "correct horse")
	until := time.Now().Add(-time.Hour)
	require.NoError(t, rm.users.UpdateBannedUntil(context.Background(), user.ID, &until))

	s := newAuthService(t, db, rm, nil, nil)

	_, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "a@example.com", Password: "correct horse"})
	assert.NoError(t, err)
}

func TestPasswordGrant_Disabled(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	cfg := testConfig()
	cfg.PasswordGrantEnabled = false
	s := newAuthService(t, db, newFakeRepoManager(), cfg, nil)

	_, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "a@example.com", Password: "x"})
	assert.ErrorIs(t, err, common.ErrGrantDisabled)
}

func TestPasswordGrant_MissingCredentials(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newFakeRepoManager(), nil, nil)

	_, err := s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "a@example.com"})
	assert.ErrorIs(t, err, common.ErrMissingCredentials)
}

func TestPasswordGrant_RehashOnParamsChange(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTx(mock, 1)

	rm := newFakeRepoManager()

	// stored hash uses weaker parameters than the service is configured with
	oldParams := password.Params{Memory: 4 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}
	oldHash, err := password.Hash("correct horse", oldParams)
	require.NoError(t, err)
	now := time.Now()
	user, err := rm.users.Create(context.Background(), &models.User{
		Email:             "a@example.com",
		EncryptedPassword: oldHash,
		ConfirmedAt:       &now,
	})
	require.NoError(t, err)

	s := newAuthService(t, db, rm, nil, nil)

	_, err = s.PasswordGrant(context.Background(), PasswordLoginRequest{Email: "a@example.com", Password: "correct horse"})
	require.NoError(t, err)

	stored, err := rm.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, stored.EncryptedPassword, "hash must be upgraded on login")
	assert.False(t, password.NeedsRehash(stored.EncryptedPassword, testHashParams))

	ok, err := password.Verify("correct horse", stored.EncryptedPassword)
	require.NoError(t, err)
	assert.True(t, ok)
}
