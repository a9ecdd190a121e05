package routes

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	var k keyedMutex
	var wg sync.WaitGroup
	var a, b int
	counts := map[string]*int{"a": &a, "b": &b}

	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock(key)
				defer unlock()
				*counts[key]++
			}()
		}
	}
	wg.Wait()

	if a != 50 || b != 50 {
		t.Errorf("counts = %d, %d; want 50 each", a, b)
	}
	if n := k.Len(); n != 0 {
		t.Errorf("Len() = %d after all unlocks, want 0", n)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	var k keyedMutex

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	<-done

	if n := k.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1 while a is held", n)
	}
	unlockA()
}
