package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, WithKeyPrefix("test:"))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return store, srv
}

func TestRedisStore_ReserveLifecycle(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	first, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Hour)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if first.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %v", first.State)
	}

	second, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Hour)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if second.State != ReservationStatePending {
		t.Fatalf("expected pending, got %v", second.State)
	}

	if _, err := store.Reserve(ctx, "k", "other", fixedTime, time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}, "Date": {"x"}}, Body: []byte(`{}`)}
	if err := store.SaveResponse(ctx, "k", "fp", resp, fixedTime, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	done, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Hour)
	if err != nil {
		t.Fatalf("reserve completed: %v", err)
	}
	if done.State != ReservationStateCompleted {
		t.Fatalf("expected completed, got %v", done.State)
	}
	if done.Record.ResponseStatus != http.StatusCreated || string(done.Record.ResponseBody) != `{}` {
		t.Fatalf("unexpected stored response %+v", done.Record)
	}
	if _, ok := done.Record.ResponseHeaders["Date"]; ok {
		t.Fatalf("hop-by-hop headers must not be stored")
	}
}

func TestRedisStore_ReleaseAndExpiry(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, "k", "fp"); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := store.Reserve(ctx, "k", "other", fixedTime, time.Minute)
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if again.State != ReservationStateNew {
		t.Fatalf("expected new reservation after release")
	}

	srv.FastForward(2 * time.Minute)
	fresh, err := store.Reserve(ctx, "k", "third", fixedTime, time.Minute)
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if fresh.State != ReservationStateNew {
		t.Fatalf("expected new reservation after ttl expiry")
	}
}

func TestRedisStore_StoreOutage(t *testing.T) {
	store, srv := newRedisStore(t)
	srv.Close()
	if _, err := store.Reserve(context.Background(), "k", "fp", fixedTime, time.Minute); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
