package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
)

// testClock is a settable time source.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func exerciseStore(t *testing.T, s Store, clock *testClock) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "voice.absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set get overwrite delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "voice.settings", []byte(`{"tts_rate":1}`), 0))
		got, err := s.Get(ctx, "voice.settings")
		require.NoError(t, err)
		assert.Equal(t, `{"tts_rate":1}`, string(got))

		require.NoError(t, s.Set(ctx, "voice.settings", []byte(`{"tts_rate":1.5}`), 0))
		got, err = s.Get(ctx, "voice.settings")
		require.NoError(t, err)
		assert.Equal(t, `{"tts_rate":1.5}`, string(got))

		require.NoError(t, s.Delete(ctx, "voice.settings"))
		_, err = s.Get(ctx, "voice.settings")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, s.Delete(ctx, "voice.settings"), "deleting a missing key is not an error")
	})

	if clock == nil {
		return
	}
	t.Run("ttl", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "voice.session_context", []byte(`{}`), time.Minute))
		clock.t = clock.t.Add(59 * time.Second)
		_, err := s.Get(ctx, "voice.session_context")
		require.NoError(t, err)

		clock.t = clock.t.Add(time.Second)
		_, err = s.Get(ctx, "voice.session_context")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemory(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.SetClock(clock.now)
	exerciseStore(t, m, clock)
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", v, 0))
	v[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "voice.db"))
	require.NoError(t, err)
	defer s.Close()

	clock := &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.now = clock.now
	exerciseStore(t, s, clock)
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "voice.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "voice.tutorial_shown", []byte("true"), 0))
	require.NoError(t, s.Close())

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "voice.tutorial_shown")
	require.NoError(t, err)
	assert.Equal(t, "true", string(got))
}

func TestRedis(t *testing.T) {
	url := os.Getenv("FARMHELP_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FARMHELP_TEST_REDIS_URL not set")
	}
	r, err := NewRedis(context.Background(), url)
	require.NoError(t, err)
	defer r.Close()
	exerciseStore(t, WithPrefix(r, "farmhelp-test:"+t.Name()+":"), nil)
}

func TestRedisBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Backend: "memory", Namespace: "farmer-1"})
	require.NoError(t, err)
	other, err := Open(ctx, config.StoreConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "kv.db")})
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, SetJSON(ctx, s, "voice.tutorial_shown", true, 0))
	var shown bool
	require.NoError(t, GetJSON(ctx, s, "voice.tutorial_shown", &shown))
	assert.True(t, shown)

	_, err = Open(ctx, config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}

func TestPrefixIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := WithPrefix(base, "a:")
	b := WithPrefix(base, "b:")

	require.NoError(t, a.Set(ctx, "voice.settings", []byte("1"), 0))
	_, err := b.Get(ctx, "voice.settings")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := base.Get(ctx, "a:voice.settings")
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))
}
