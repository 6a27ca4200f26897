package sheetstore

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPendingSet_Acquire(t *testing.T) {
	p := newPendingSet()
	key := pendingKey{sheet: "Users", id: "a@x.com", column: "login_count"}

	release, err := p.acquire(key)
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}

	_, err = p.acquire(key)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second acquire() error = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "Users-a@x.com-login_count") {
		t.Errorf("conflict message = %q, want the key", err.Error())
	}

	// Other cells of the same row are independent
	other, err := p.acquire(pendingKey{sheet: "Users", id: "a@x.com", column: "Password"})
	if err != nil {
		t.Fatalf("acquire() of another column error = %v", err)
	}
	other()

	release()
	release()
	if p.size() != 0 {
		t.Errorf("size() = %d after release, want 0", p.size())
	}
	if _, err := p.acquire(key); err != nil {
		t.Errorf("acquire() after release error = %v", err)
	}
}

func TestPendingSet_AllOrNothing(t *testing.T) {
	p := newPendingSet()
	busy := pendingKey{sheet: "Users", id: "1", column: "b"}
	hold, _ := p.acquire(busy)
	defer hold()

	_, err := p.acquire(
		pendingKey{sheet: "Users", id: "1", column: "a"},
		busy,
		pendingKey{sheet: "Users", id: "1", column: "c"},
	)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("acquire() error = %v, want ErrConflict", err)
	}
	if p.size() != 1 {
		t.Errorf("size() = %d, a failed acquire must not keep any key", p.size())
	}
}

func TestPendingSet_Concurrent(t *testing.T) {
	p := newPendingSet()
	key := pendingKey{sheet: "Users", id: "1", column: "a"}

	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := p.acquire(key); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d goroutines acquired the same key, want 1", wins)
	}
}
