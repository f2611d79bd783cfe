package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, WithPrefix("test")), mr
}

func TestRedisStoreGetOrInit(t *testing.T) {
	s, _ := newTestRedisStore(t)
	defer s.Close()

	key := Key{NodeID: "n1", SessionID: "s1"}
	v, err := s.GetOrInit(context.Background(), key, time.Hour, func() ([]byte, error) {
		return []byte("value"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)

	v2, err := s.GetOrInit(context.Background(), key, time.Hour, func() ([]byte, error) {
		t.Fatal("init must not be called when an entry already exists")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v2)
}

func TestRedisStoreUpdate(t *testing.T) {
	s, _ := newTestRedisStore(t)
	defer s.Close()

	key := Key{NodeID: "n1", SessionID: "s1"}
	require.NoError(t, s.Update(context.Background(), key, time.Hour, func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte("first"), nil
	}))
	require.NoError(t, s.Update(context.Background(), key, time.Hour, func(current []byte) ([]byte, error) {
		assert.Equal(t, []byte("first"), current)
		return []byte("second"), nil
	}))

	v, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("second"), v)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	defer s.Close()

	key := Key{NodeID: "n1", SessionID: "s1"}
	_, err := s.GetOrInit(context.Background(), key, time.Second, func() ([]byte, error) {
		return []byte("v"), nil
	})
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRemoveSession(t *testing.T) {
	s, _ := newTestRedisStore(t)
	defer s.Close()

	ctx := context.Background()
	k1 := Key{NodeID: "n1", SessionID: "s1"}
	k2 := Key{NodeID: "n2", SessionID: "s1"}
	otherSession := Key{NodeID: "n1", SessionID: "s2"}

	for _, k := range []Key{k1, k2, otherSession} {
		_, err := s.GetOrInit(ctx, k, time.Hour, func() ([]byte, error) { return []byte("v"), nil })
		require.NoError(t, err)
	}

	require.NoError(t, s.RemoveSession(ctx, "s1"))

	for _, k := range []Key{k1, k2} {
		_, ok, err := s.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, ok, err := s.Get(ctx, otherSession)
	require.NoError(t, err)
	assert.True(t, ok, "other session's state must be unaffected")
}

func TestRedisStoreRemove(t *testing.T) {
	s, _ := newTestRedisStore(t)
	defer s.Close()

	key := Key{NodeID: "n1", SessionID: "s1"}
	_, err := s.GetOrInit(context.Background(), key, time.Hour, func() ([]byte, error) { return []byte("v"), nil })
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), key))
	_, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}
