package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "cn_session", "secret", time.Hour, false), mr
}

func commitAndCookie(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessionRoundTripCarriesTenant(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	userID, carrierID := uuid.NewString(), uuid.NewString()
	sess.SetUser(userID, carrierID)
	cookie := commitAndCookie(t, sm, sess)
	require.True(t, mr.Exists("session:"+sess.ID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, userID, loaded.User())
	require.Equal(t, carrierID, loaded.Carrier())
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(uuid.NewString(), uuid.NewString())
	cookie := commitAndCookie(t, sm, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: sess.ID + ".forged"})
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NotEqual(t, sess.ID, loaded.ID)
	require.Empty(t, loaded.User())
}

func TestAnonymousSessionIsNotPersisted(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, sess))
	require.Empty(t, rec.Result().Cookies())
	require.Empty(t, mr.Keys())
}

func TestRotateDropsPreviousID(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("k", "v")
	cookie := commitAndCookie(t, sm, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	oldID := loaded.ID
	sm.Rotate(loaded)
	commitAndCookie(t, sm, loaded)

	require.False(t, mr.Exists("session:"+oldID))
	require.True(t, mr.Exists("session:"+loaded.ID))
	require.Equal(t, "v", loaded.Get("k"))
}

func TestDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(uuid.NewString(), uuid.NewString())
	commitAndCookie(t, sm, sess)

	sm.Destroy(sess)
	cookie := commitAndCookie(t, sm, sess)
	require.Equal(t, -1, cookie.MaxAge)
	require.False(t, mr.Exists("session:"+sess.ID))
}
