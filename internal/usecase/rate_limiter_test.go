package usecase

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("call %d should be allowed", i+1)
		}
		limiter.Record()
	}

	if limiter.Allow() {
		t.Fatal("call over the limit should be refused")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter := NewRateLimiter(2, 50*time.Millisecond)

	limiter.Record()
	limiter.Record()
	if limiter.Allow() {
		t.Fatal("expected limiter to be full")
	}

	time.Sleep(60 * time.Millisecond)

	if !limiter.Allow() {
		t.Fatal("expected capacity after the window slid past the old calls")
	}
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour)
	limiter.Record()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	if err == nil {
		t.Fatal("expected Wait to fail when the context expires first")
	}
}

func TestRateLimiter_WaitAdmitsAtMostLimitConcurrently(t *testing.T) {
	limiter := NewRateLimiter(5, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Wait(ctx) == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 5 {
		t.Fatalf("expected exactly 5 admissions under concurrent Wait, got %d", count)
	}
	if limiter.Allow() {
		t.Fatal("expected limiter window to be full after admissions")
	}
}

func TestRateLimiter_ConcurrentRecords(t *testing.T) {
	limiter := NewRateLimiter(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Record()
		}()
	}
	wg.Wait()

	if limiter.Allow() {
		t.Fatal("expected limiter to be exactly full after 100 concurrent records")
	}
}
