package store

import (
	"sync"
	"testing"
)

func Test_KeyLocks_Forgets_Keys_When_Released(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()

	var wg sync.WaitGroup

	for range 8 {
		wg.Go(func() {
			unlock := locks.lock(lockKey("docs", "a"))
			unlock()
		})
	}

	wg.Wait()

	if n := locks.size(); n != 0 {
		t.Fatalf("tracked keys = %d, want 0", n)
	}
}

func Test_KeyLocks_Does_Not_Block_When_Keys_Differ(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()

	unlockA := locks.lock(lockKey("docs", "a"))
	defer unlockA()

	done := make(chan struct{})

	go func() {
		unlock := locks.lock(lockKey("meta", "a"))
		unlock()
		close(done)
	}()

	<-done
}
