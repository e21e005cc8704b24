package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisLock_Exclusion(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "job", time.Minute)
	b := NewRedisLock(rdb, "job", time.Minute)

	got, err := a.TryAcquire(ctx)
	if err != nil || !got {
		t.Fatalf("first acquire = %v, %v; want true, nil", got, err)
	}

	got, err = b.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got {
		t.Fatal("second holder acquired a held lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, err = b.TryAcquire(ctx)
	if err != nil || !got {
		t.Fatalf("acquire after release = %v, %v; want true, nil", got, err)
	}
}

func TestRedisLock_ReleaseOnlyOwn(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "job", time.Minute)
	b := NewRedisLock(rdb, "job", time.Minute)

	if got, _ := a.TryAcquire(ctx); !got {
		t.Fatal("setup: acquire failed")
	}

	// b never held the lock; releasing must not free a's lock.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got, _ := b.TryAcquire(ctx); got {
		t.Fatal("foreign release freed a held lock")
	}
}

func TestRedisLock_Extend(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "job", time.Minute)
	if got, _ := a.TryAcquire(ctx); !got {
		t.Fatal("setup: acquire failed")
	}
	if err := a.Extend(ctx, 2*time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
}

func TestNew_PrefersRedis(t *testing.T) {
	rdb := testRedis(t)
	if _, ok := New(rdb, nil, "job", time.Minute).(*RedisLock); !ok {
		t.Error("expected Redis backend when a client is available")
	}
	if _, ok := New(nil, nil, "job", time.Minute).(*AdvisoryLock); !ok {
		t.Error("expected advisory backend without Redis")
	}
}
