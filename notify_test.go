package sheetstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type countingMetrics struct {
	sheetstore.NopMetrics
	mu        sync.Mutex
	hits      int
	misses    int
	conflicts int
	dropped   int
	calls     map[string]int
}

func (m *countingMetrics) CacheHit(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) CacheMiss(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *countingMetrics) BackendCall(op string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

func (m *countingMetrics) WriteConflict(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *countingMetrics) NotificationDropped(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func TestDispatcher_Delivers(t *testing.T) {
	var mu sync.Mutex
	var got []sheetstore.Change
	notifier := sheetstore.NotifierFunc(func(ctx context.Context, c sheetstore.Change) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
		return nil
	})

	d := sheetstore.NewDispatcher(notifier, 4, time.Second, quietLogger(), nil)
	for _, sheet := range []string{"Users", "Bookings", "Users"} {
		if !d.Dispatch(sheetstore.Change{Sheet: sheet, Op: sheetstore.OpUpdate}) {
			t.Fatalf("Dispatch(%s) rejected", sheet)
		}
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0].Sheet != "Users" || got[1].Sheet != "Bookings" {
		t.Errorf("delivered %v, want three changes in order", got)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	notifier := sheetstore.NotifierFunc(func(ctx context.Context, c sheetstore.Change) error {
		started <- struct{}{}
		<-release
		return nil
	})
	logger, hook := test.NewNullLogger()
	metrics := &countingMetrics{}

	d := sheetstore.NewDispatcher(notifier, 1, time.Second, logger, metrics)

	// First change occupies the worker, second fills the queue
	d.Dispatch(sheetstore.Change{Sheet: "A"})
	<-started
	if !d.Dispatch(sheetstore.Change{Sheet: "B"}) {
		t.Fatal("Dispatch() rejected a change with queue room")
	}

	begin := time.Now()
	if d.Dispatch(sheetstore.Change{Sheet: "C"}) {
		t.Error("Dispatch() accepted a change into a full queue")
	}
	if time.Since(begin) > 100*time.Millisecond {
		t.Error("Dispatch() blocked on a full queue")
	}

	close(release)
	d.Stop()

	if metrics.dropped != 1 {
		t.Errorf("dropped = %d, want 1", metrics.dropped)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("last log entry = %v, want a warning", entry)
	}
	if entry.Data["sheet"] != "C" {
		t.Errorf("dropped sheet logged as %v, want C", entry.Data["sheet"])
	}
}

func TestDispatcher_FailureIsLogged(t *testing.T) {
	notifier := sheetstore.NotifierFunc(func(ctx context.Context, c sheetstore.Change) error {
		return errors.New("script timeout")
	})
	logger, hook := test.NewNullLogger()

	d := sheetstore.NewDispatcher(notifier, 1, time.Second, logger, nil)
	d.Dispatch(sheetstore.Change{Sheet: "Users", Op: sheetstore.OpDelete, Row: 4})
	d.Stop()

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "external update notification failed" {
		t.Fatalf("last log entry = %v", entry)
	}
	if entry.Data["op"] != "delete" || entry.Data["row"] != 4 {
		t.Errorf("log fields = %v", entry.Data)
	}
}

func TestDispatcher_AppliesTimeout(t *testing.T) {
	done := make(chan error, 1)
	notifier := sheetstore.NotifierFunc(func(ctx context.Context, c sheetstore.Change) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})

	d := sheetstore.NewDispatcher(notifier, 1, 20*time.Millisecond, quietLogger(), nil)
	d.Dispatch(sheetstore.Change{Sheet: "Users"})
	d.Stop()

	if err := <-done; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("notifier ctx error = %v, want deadline exceeded", err)
	}
}

func TestDispatcher_StopRefusesNewChanges(t *testing.T) {
	d := sheetstore.NewDispatcher(sheetstore.NotifierFunc(func(context.Context, sheetstore.Change) error {
		return nil
	}), 1, time.Second, quietLogger(), nil)
	d.Stop()
	d.Stop()

	if d.Dispatch(sheetstore.Change{Sheet: "Users"}) {
		t.Error("Dispatch() accepted a change after Stop")
	}
}
