package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/server"
	"github.com/Gopher0727/MiniChat/internal/utils"
	"github.com/Gopher0727/MiniChat/middleware/jwt"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
)

func TestMain(m *testing.M) {
	utils.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func startServer(t *testing.T, mutate ...func(*config.Config)) string {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Server.Mode = "test"
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.JWT.Secret = "client-test"
	for _, fn := range mutate {
		fn(cfg)
	}

	srv, err := server.New(cfg, logger.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts.URL
}

func newAPI(url string) *API {
	return NewAPI(Config{BaseURL: url, Timeout: 2 * time.Second})
}

func TestAPI_RegisterLoginFlow(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	api := newAPI(url)

	me, err := api.Register(ctx, "alice", "likes go", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Name)
	assert.Equal(t, "likes go", me.Info)
	assert.NotZero(t, me.ID)
	assert.NotEmpty(t, api.Token())

	other := newAPI(url)
	got, err := other.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, me, got)

	_, err = other.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrRejected)
	_, err = other.Login(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, ErrRejected)

	_, err = api.Register(ctx, "alice", "again", "pw")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestAPI_SnapshotAndSend(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	alice := newAPI(url)
	bob := newAPI(url)

	a, err := alice.Register(ctx, "alice", "a", "pw")
	require.NoError(t, err)
	_, err = bob.Register(ctx, "bob", "b", "pw")
	require.NoError(t, err)

	require.NoError(t, alice.SendMessage(ctx, "alice", "hi"))
	require.NoError(t, bob.SendMessage(ctx, "bob", "hello"))
	assert.ErrorIs(t, bob.SendMessage(ctx, "ghost", "boo"), ErrRejected)

	snap, err := alice.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Users, 2)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hi", snap.Messages[0].Text)
	assert.Equal(t, "alice", snap.Messages[0].Author)
	assert.Equal(t, a.ID, snap.Messages[0].AuthorID)
	assert.Equal(t, uint(1), snap.Messages[0].ID)
	assert.Equal(t, uint(2), snap.Messages[1].ID)

	structured, err := alice.StructuredSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, structured.Messages, 2)
	assert.Equal(t, "hello", structured.Messages[1].Text)
	assert.False(t, structured.Messages[1].Date.IsZero())

	require.NoError(t, alice.GoOffline(ctx, a.ID))
	snap, err = bob.Snapshot(ctx)
	require.NoError(t, err)
	for _, u := range snap.Users {
		if u.Name == "alice" {
			assert.False(t, u.Online)
		} else {
			assert.True(t, u.Online)
		}
	}
}

func TestAPI_SessionRoutes(t *testing.T) {
	url := startServer(t, func(c *config.Config) { c.Server.RequireSession = true })
	ctx := context.Background()

	anon := newAPI(url)
	assert.ErrorIs(t, anon.SendMessage(ctx, "alice", "hi"), ErrUnauthorized)
	assert.ErrorIs(t, anon.RefreshToken(ctx), ErrUnauthorized)

	alice := newAPI(url)
	a, err := alice.Register(ctx, "alice", "a", "pw")
	require.NoError(t, err)
	bob := newAPI(url)
	_, err = bob.Register(ctx, "bob", "b", "pw")
	require.NoError(t, err)

	require.NoError(t, alice.RefreshToken(ctx))
	assert.NotEmpty(t, alice.Token())
	assert.ErrorIs(t, bob.GoOffline(ctx, a.ID), ErrForbidden)
	require.NoError(t, alice.GoOffline(ctx, a.ID))
}

func expiredToken(t *testing.T, refreshHours int, me Identity) string {
	t.Helper()
	token, err := jwt.NewTokenManager("client-test", -1, refreshHours).GenerateToken(me.ID, me.ID, me.Name)
	require.NoError(t, err)
	return token
}

func TestAPI_ExpiredTokenRenewedOnUnauthorized(t *testing.T) {
	url := startServer(t, func(c *config.Config) { c.Server.RequireSession = true })
	ctx := context.Background()

	alice := newAPI(url)
	me, err := alice.Register(ctx, "alice", "a", "pw")
	require.NoError(t, err)

	expired := expiredToken(t, 168, me)
	alice.SetToken(expired)
	assert.True(t, alice.TokenNeedsRenewal(time.Now()))

	// 401 后刷新一次再重试
	require.NoError(t, alice.SendMessage(ctx, me.Name, "after expiry"))
	assert.NotEqual(t, expired, alice.Token())
	assert.False(t, alice.TokenNeedsRenewal(time.Now()))
	require.NoError(t, alice.GoOffline(ctx, me.ID))
}

func TestAPI_UnrefreshableTokenDropped(t *testing.T) {
	url := startServer(t, func(c *config.Config) {
		c.Server.RequireSession = true
		c.JWT.RefreshHours = 0
	})
	ctx := context.Background()

	alice := newAPI(url)
	me, err := alice.Register(ctx, "alice", "a", "pw")
	require.NoError(t, err)
	alice.SetToken(expiredToken(t, 0, me))

	// 刷新失败后丢弃 token，匿名重试在会话模式下仍被拒绝
	assert.ErrorIs(t, alice.SendMessage(ctx, me.Name, "hi"), ErrUnauthorized)
	assert.Empty(t, alice.Token())
}

func TestAPI_ExpiredTokenInCompatMode(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	alice := newAPI(url)
	me, err := alice.Register(ctx, "alice", "a", "pw")
	require.NoError(t, err)
	alice.SetToken(expiredToken(t, 168, me))

	require.NoError(t, alice.SendMessage(ctx, me.Name, "hi"))
	require.NoError(t, alice.GoOffline(ctx, me.ID))

	snap, err := newAPI(url).Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.False(t, snap.Users[0].Online)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hi", snap.Messages[0].Text)
	assert.Equal(t, "alice", snap.Messages[0].Author)
}

func TestAPI_TokenNeedsRenewal(t *testing.T) {
	api := newAPI("http://127.0.0.1:1")
	assert.False(t, api.TokenNeedsRenewal(time.Now()))

	api.SetToken("not-a-jwt")
	assert.False(t, api.TokenNeedsRenewal(time.Now()))

	fresh, err := jwt.NewTokenManager("any", 24, 168).GenerateToken(1, 1, "alice")
	require.NoError(t, err)
	api.SetToken(fresh)
	assert.False(t, api.TokenNeedsRenewal(time.Now()))
	assert.True(t, api.TokenNeedsRenewal(time.Now().Add(13*time.Hour)))
}

func TestAPI_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	api := NewAPI(Config{BaseURL: url, Timeout: 500 * time.Millisecond})
	_, err := api.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	_, err = api.Login(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestAPI_HTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer ts.Close()

	api := newAPI(ts.URL)
	_, err := api.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
	assert.False(t, errors.Is(err, ErrUnreachable))

	assert.ErrorIs(t, api.SendMessage(context.Background(), "a", "b"), ErrRateLimited)
}

func TestBearer(t *testing.T) {
	assert.Equal(t, "abc", bearer("Bearer abc"))
	assert.Equal(t, "abc", bearer("bearer  abc "))
	assert.Empty(t, bearer("Basic abc"))
	assert.Empty(t, bearer(""))
}
