package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_Burst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	// Burst of 3 allowed
	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}

	// 4th request exceeds the bucket
	if l.Allow("client") {
		t.Error("request beyond burst should be denied")
	}
}

func TestAllow_Refill(t *testing.T) {
	// 600 rpm = 10 tokens/sec, so 200ms refills ~2 tokens
	l := New(Config{RequestsPerMinute: 600, BurstSize: 2, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("client")
	l.Allow("client")
	if l.Allow("client") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(200 * time.Millisecond)
	if !l.Allow("client") {
		t.Error("bucket should have refilled")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("a") {
		t.Error("first request for a should pass")
	}
	if !l.Allow("b") {
		t.Error("first request for b should pass despite a's bucket being empty")
	}
}
