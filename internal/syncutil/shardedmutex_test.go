package syncutil

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	var sm ShardedMutex
	var wg sync.WaitGroup

	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("txn_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("Expected counter 100, got %d", counter)
	}
}

func TestLockDifferentShardsIndependent(t *testing.T) {
	var sm ShardedMutex

	if sm.shard("txn_held") == sm.shard("txn_other") {
		t.Skip("keys collide in one shard")
	}

	unlock1 := sm.Lock("txn_held")
	defer unlock1()

	// Must not block on the lock held above.
	unlock2 := sm.Lock("txn_other")
	unlock2()
}

func TestUnlockReleases(t *testing.T) {
	var sm ShardedMutex

	unlock := sm.Lock("txn_1")
	unlock()

	// Re-acquiring after unlock must not block.
	unlock = sm.Lock("txn_1")
	unlock()
}
