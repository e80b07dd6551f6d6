package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSetGet(t *testing.T) {
	s := NewStore(time.Minute)
	s.Set("a", 1)

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, s.Len())

	s.Delete("a")
	_, ok = s.Get("a")
	assert.False(t, ok)
}

func TestStoreExpires(t *testing.T) {
	s := NewStore(20 * time.Millisecond)
	s.Set("a", 1)
	time.Sleep(40 * time.Millisecond)
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	s := NewStore(time.Minute)
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := s.GetOrLoad(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "value", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, hit, err := s.GetOrLoad(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		t.Fatal("loader called on a cached key")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	s := NewStore(time.Minute)
	boom := errors.New("boom")

	_, _, err := s.GetOrLoad(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}
