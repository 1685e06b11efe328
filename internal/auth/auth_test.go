package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colivhub/colivrt/internal/eventbus"

	"github.com/cristalhq/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "secret"

func TestGenerateVerifyInspect(t *testing.T) {
	token, err := GenerateHS256(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyHS256(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.False(t, claims.Expired(time.Now()))

	inspected, err := Inspect(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", inspected.Subject)
	require.WithinDuration(t, time.Now().Add(time.Hour), inspected.ExpiresAt, 5*time.Second)

	_, err = VerifyHS256("other", token)
	require.Error(t, err)
}

func TestGenerateNoSecret(t *testing.T) {
	_, err := GenerateHS256("", "user", 0)
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestVerifyExpired(t *testing.T) {
	token := expiredToken(t)
	_, err := VerifyHS256(testSecret, token)
	require.Error(t, err)
}

func TestInspectMalformed(t *testing.T) {
	_, err := Inspect("not-a-jwt")
	require.Error(t, err)
}

func expiredToken(t *testing.T) string {
	t.Helper()
	signer, err := jwt.NewSignerHS(jwt.HS256, []byte(testSecret))
	require.NoError(t, err)
	token, err := jwt.NewBuilder(signer).Build(jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	require.NoError(t, err)
	return token.String()
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	s := NewFileStore(path)

	token, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, s.Save("tok"))
	token, err = s.Load()
	require.NoError(t, err)
	require.Equal(t, "tok", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	token, err = s.Load()
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestFileStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	_, err := NewFileStore(path).Load()
	require.Error(t, err)
}

func TestLoginLogout(t *testing.T) {
	bus := eventbus.New()
	store := NewMemoryStore("")
	var logins, logouts []string
	eventbus.Subscribe(bus, LoginTopic, func(s Signal) { logins = append(logins, s.Source) })
	eventbus.Subscribe(bus, LogoutTopic, func(s Signal) { logouts = append(logouts, s.Source) })

	require.ErrorIs(t, Login(store, bus, "", "test"), ErrEmptyToken)
	require.Empty(t, logins)

	require.NoError(t, Login(store, bus, "tok", "test"))
	token, err := CurrentToken(store)
	require.NoError(t, err)
	require.Equal(t, "tok", token)
	require.Equal(t, []string{"test"}, logins)

	require.NoError(t, Logout(store, bus, "test"))
	token, err = CurrentToken(store)
	require.NoError(t, err)
	require.Empty(t, token)
	require.Equal(t, []string{"test"}, logouts)
}

func TestCurrentTokenExpired(t *testing.T) {
	store := NewMemoryStore(expiredToken(t))
	token, err := CurrentToken(store)
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestWatcher(t *testing.T) {
	testWatcher(t, filepath.Join(t.TempDir(), "token.json"))
}

func TestWatcherMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colivrt", "token.json")
	testWatcher(t, path)
	require.DirExists(t, filepath.Dir(path))
}

func testWatcher(t *testing.T, path string) {
	t.Helper()
	store := NewFileStore(path)
	bus := eventbus.New()
	var logins, logouts atomic.Int32
	var source atomic.Value
	eventbus.Subscribe(bus, LoginTopic, func(s Signal) {
		source.Store(s.Source)
		logins.Add(1)
	})
	eventbus.Subscribe(bus, LogoutTopic, func(Signal) { logouts.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(store, bus)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, store.Save("tok1"))
	require.Eventually(t, func() bool { return logins.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, watcherSource, source.Load())

	require.NoError(t, store.Clear())
	require.Eventually(t, func() bool { return logouts.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "watcher did not stop")
	}
}
