package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetclinic/storefront/internal/cart"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/httputil"
	"github.com/vetclinic/storefront/internal/remote"
	"github.com/vetclinic/storefront/internal/validate"
	"github.com/vetclinic/storefront/pkg/testutil"
)

func newAuth(t *testing.T) (*testutil.FakeAPI, *remote.AuthService) {
	t.Helper()
	api := testutil.NewFakeAPI()
	api.AddUser(testutil.FakeUser{UserID: 3, CartID: 30, Email: "vet@clinica.mx", Password: "gatito1"})
	server := api.Start()
	t.Cleanup(server.Close)

	client, err := httputil.New(httputil.Config{BaseURL: server.URL, MaxRetries: -1})
	require.NoError(t, err)
	return api, remote.NewAuthService(client)
}

// =============================================================================
// Manager
// =============================================================================

func TestLogin_PersistsSession(t *testing.T) {
	_, auth := newAuth(t)
	store := &MemoryStore{}
	m := NewManager(auth, store, nil, nil)

	user, err := m.Login(context.Background(), "vet@clinica.mx", "gatito1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.UserID)
	assert.True(t, m.Authenticated())

	st, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, m.Token(), st.Token)
	assert.Equal(t, int64(30), st.User.CartID)
}

func TestLogin_ValidationRunsFirst(t *testing.T) {
	api, auth := newAuth(t)
	m := NewManager(auth, nil, nil, nil)

	_, err := m.Login(context.Background(), "no-es-correo", "gatito1")
	require.Error(t, err)
	assert.Equal(t, validate.MsgLoginBadEmail, serrors.UserMessage(err))
	assert.Equal(t, 0, api.Calls("POST", "/user/login"))
}

func TestLogin_Rejected(t *testing.T) {
	_, auth := newAuth(t)
	store := &MemoryStore{}
	m := NewManager(auth, store, nil, nil)

	_, err := m.Login(context.Background(), "vet@clinica.mx", "otraclave")
	require.Error(t, err)
	assert.Equal(t, "Credenciales inválidas", serrors.UserMessage(err))
	assert.False(t, m.Authenticated())

	st, _ := store.Load()
	assert.Nil(t, st)
}

func TestLogout_ClearsCartAndStore(t *testing.T) {
	_, auth := newAuth(t)
	store := &MemoryStore{}
	c := cart.NewManager()
	c.Add(cart.LineItem{ID: 1, Name: "Croquetas", Price: decimal.NewFromInt(10)}, 2)
	m := NewManager(auth, store, c, nil)

	_, err := m.Login(context.Background(), "vet@clinica.mx", "gatito1")
	require.NoError(t, err)
	require.NoError(t, m.Logout())

	assert.False(t, m.Authenticated())
	assert.Equal(t, 0, c.Len())
	_, ok := m.User()
	assert.False(t, ok)
	st, _ := store.Load()
	assert.Nil(t, st)
}

func TestLoad(t *testing.T) {
	api, _ := newAuth(t)
	store := &MemoryStore{}
	require.NoError(t, store.Save(State{
		Token: api.IssueToken(3, time.Now().Add(time.Hour)),
		User:  remote.User{UserID: 3},
	}))

	m := NewManager(nil, store, nil, nil)
	ok, err := m.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	user, _ := m.User()
	assert.Equal(t, int64(3), user.UserID)

	token, err := m.RequireToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestLoad_ExpiredTokenIsDropped(t *testing.T) {
	api, _ := newAuth(t)
	store := &MemoryStore{}
	require.NoError(t, store.Save(State{Token: api.IssueToken(3, time.Now().Add(-time.Minute))}))

	m := NewManager(nil, store, nil, nil)
	ok, err := m.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	st, _ := store.Load()
	assert.Nil(t, st)

	_, err = m.RequireToken()
	assert.True(t, serrors.IsUnauthorized(err))
}

func TestToken_ExpiresWhileHeld(t *testing.T) {
	api, _ := newAuth(t)
	now := time.Now()
	store := &MemoryStore{}
	require.NoError(t, store.Save(State{Token: api.IssueToken(3, now.Add(time.Minute))}))

	m := NewManager(nil, store, nil, nil)
	m.now = func() time.Time { return now }
	ok, err := m.Load()
	require.NoError(t, err)
	require.True(t, ok)

	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, "", m.Token())
}

func TestTokenExpiry(t *testing.T) {
	api, _ := newAuth(t)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, ok := TokenExpiry(api.IssueToken(1, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry("opaque-token")
	assert.False(t, ok)
}

func TestLoad_OpaqueTokenNeverExpires(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(State{Token: "abc123"}))

	m := NewManager(nil, store, nil, nil)
	ok, err := m.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", m.Token())
}

// =============================================================================
// FileStore
// =============================================================================

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	fs := FileStore{Path: path}

	st, err := fs.Load()
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, fs.Save(State{Token: "t", User: remote.User{UserID: 9, Email: "a@b.co"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	st, err = fs.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "t", st.Token)
	assert.Equal(t, int64(9), st.User.UserID)

	require.NoError(t, fs.Delete())
	require.NoError(t, fs.Delete())
	st, err = fs.Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := FileStore{Path: path}.Load()
	assert.Error(t, err)
}

func TestState_StringHidesToken(t *testing.T) {
	s := State{Token: "secret-token", User: remote.User{UserID: 1, CartID: 2}}
	assert.NotContains(t, s.String(), "secret-token")
}
