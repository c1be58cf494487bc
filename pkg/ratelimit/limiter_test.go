package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIntervalFirstCallImmediate(t *testing.T) {
	l := NewInterval(time.Second)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected first call to pass immediately, waited %v", elapsed)
	}
}

func TestIntervalEnforcesSpacing(t *testing.T) {
	l := NewInterval(150 * time.Millisecond)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected second call to wait close to the interval, waited only %v", elapsed)
	}
}

func TestIntervalCancellable(t *testing.T) {
	l := NewInterval(10 * time.Second)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}

func TestIntervalReset(t *testing.T) {
	l := NewInterval(10 * time.Second)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	l.Reset()

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected immediate pass after reset, waited %v", elapsed)
	}
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, time.Second)

	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	time.Sleep(time.Second + 100*time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWaitCancellable(t *testing.T) {
	tb := NewTokenBucket(1, 10*time.Second)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Expected first wait to pass, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}

func TestNop(t *testing.T) {
	var l Limiter = Nop{}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Expected nop limiter to never block, got %v", err)
	}
}
