package services

import (
	"fmt"
	"sync"
	"testing"

	"cashflow/internal/core"
)

func TestKeyedMutex_ReleasesUnusedKeys(t *testing.T) {
	k := newKeyedMutex()
	for i := 0; i < 100; i++ {
		unlock := k.lock(core.LedgerID(fmt.Sprintf("CF%010d", i)))
		unlock()
	}
	if n := k.size(); n != 0 {
		t.Fatalf("size = %d after every lock was released, want 0", n)
	}
}

func TestKeyedMutex_SerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	id := core.LedgerID("CF0000000001")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock(id)
			mu.Lock()
			inside++
			if inside > 1 {
				overlap = true
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("two holders of the same key ran at once")
	}
	if n := k.size(); n != 0 {
		t.Errorf("size = %d after all holders finished, want 0", n)
	}
}
