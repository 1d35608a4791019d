package quest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()
	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	exerciseLocker(t, l)
	assert.Empty(t, l.locks, "entries are released")
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	u1, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	u2, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	u1()
	u2()
}

func TestCacheLocker_Exclusive(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	exerciseLocker(t, NewCacheLocker(c, time.Second))
}

func TestCacheLocker_ReleaseOnlyOwnLease(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	ctx := context.Background()
	l := NewCacheLocker(c, 30*time.Millisecond)
	l.renew = 0 // a holder that stopped renewing

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond) // lease expires

	unlock2, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock() // stale holder must not free the new lease

	_, err = c.Get(ctx, "quest:lock:k")
	assert.NoError(t, err, "new lease still held")
	unlock2()
	_, err = c.Get(ctx, "quest:lock:k")
	assert.Error(t, err)
}

func TestCacheLocker_RenewsLeaseWhileHeld(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	ctx := context.Background()
	l := NewCacheLocker(c, 30*time.Millisecond)

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond) // several TTLs

	short, cancel := context.WithTimeout(ctx, 40*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a long operation keeps its lease")

	unlock()
	_, err = c.Get(ctx, "quest:lock:k")
	assert.Error(t, err)

	// Once released the lease is no longer renewed.
	unlock2, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock2()
}
