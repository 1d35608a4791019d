package quest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
)

// Locker serializes mutating operations on the same key.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases the lock and is safe to call once.
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// CacheLocker is a lease lock on the shared cache, so several server
// processes can serialize on the same instance. While held, the lease is
// renewed every third of its TTL; it expires after TTL if the holder dies.
type CacheLocker struct {
	cache  cache.Cache
	ttl    time.Duration
	renew  time.Duration // 0 disables renewal
	retry  time.Duration
	prefix string
}

func NewCacheLocker(c cache.Cache, ttl time.Duration) *CacheLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CacheLocker{
		cache:  c,
		ttl:    ttl,
		renew:  ttl / 3,
		retry:  20 * time.Millisecond,
		prefix: "quest:lock:",
	}
}

func (l *CacheLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.cache.SetNX(ctx, k, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	stop := make(chan struct{})
	if l.renew > 0 {
		go l.keepAlive(k, token, stop)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			// Only our own lease is removed; an expired one may already
			// belong to someone else.
			_, _ = l.cache.CompareAndDelete(context.Background(), k, token)
		})
	}, nil
}

// keepAlive extends the lease until stop is closed or the key is seen
// holding another token. Read errors are retried on the next tick.
func (l *CacheLocker) keepAlive(k, token string, stop <-chan struct{}) {
	t := time.NewTicker(l.renew)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.renew)
		v, err := l.cache.Get(ctx, k)
		if err == nil && v != token {
			cancel()
			return
		}
		if err == nil {
			_ = l.cache.Expire(ctx, k, l.ttl)
		}
		cancel()
	}
}
