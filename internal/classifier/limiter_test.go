package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestLocalLimiter(t *testing.T) {
	t.Parallel()

	l := NewLocalLimiter(1)
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx); err == nil {
		t.Error("second Acquire() succeeded while slot held")
	}

	release()
	release2, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	key := "newswire:test:" + uuid.NewString()

	a := NewRedisLimiter(client, key, 1, time.Minute)
	b := NewRedisLimiter(client, key, 1, time.Minute)
	b.poll = 5 * time.Millisecond

	release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Acquire(ctx); err == nil {
		t.Error("second process acquired a held slot")
	}

	release()
	releaseB, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	releaseB()

	expired := NewRedisLimiter(client, key, 1, time.Millisecond)
	if _, err := expired.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	releaseC, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after lease expiry error = %v", err)
	}
	releaseC()

	// The expired holder was swept and every live holder released.
	if n, err := client.ZCard(context.Background(), key).Result(); err != nil || n != 0 {
		t.Errorf("ZCard() = %d, %v; want 0", n, err)
	}
}
