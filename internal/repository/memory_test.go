package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionRepository_GetSet(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "s1", "checkoutData")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "s1", "checkoutData", []byte(`{"name":"Ana"}`)))
	require.NoError(t, repo.Set(ctx, "s1", "checkoutData", []byte(`{"name":"Bia"}`)))

	value, ok, err := repo.Get(ctx, "s1", "checkoutData")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"name":"Bia"}`, string(value))

	_, ok, _ = repo.Get(ctx, "s2", "checkoutData")
	assert.False(t, ok, "sessions must be isolated")
}

func TestMemorySessionRepository_ValuesAreCopied(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, repo.Set(ctx, "s1", "k", in))
	in[0] = 'x'

	out, _, _ := repo.Get(ctx, "s1", "k")
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, _, _ := repo.Get(ctx, "s1", "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemorySessionRepository_Purge(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Set(ctx, "old", "k", []byte("1")))
	repo.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, repo.Set(ctx, "new", "k", []byte("2")))

	n, err := repo.Purge(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, repo.Sessions())

	_, ok, _ := repo.Get(ctx, "new", "k")
	assert.True(t, ok)
}

func TestMemorySessionRepository_Concurrent(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", i%4)
			_ = repo.Set(ctx, session, "k", []byte(fmt.Sprint(i)))
			_, _, _ = repo.Get(ctx, session, "k")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, repo.Sessions())
}
