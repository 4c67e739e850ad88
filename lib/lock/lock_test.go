package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExclusive(t *testing.T) {
	l := NewLocal()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := l.Lock(context.Background(), "owner")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal()

	unlock, err := l.Lock(context.Background(), "owner")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "owner")
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other keys are independent
	other, err := l.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	// releasing twice is harmless
	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "owner")
	require.NoError(t, err)
	again()
}
