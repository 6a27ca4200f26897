package sheetstore_test

import (
	"context"
	"sync"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/danielGPGT/go-sheetstore/adapters/memory"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func usersGrid() [][]string {
	return [][]string{
		{"Email", "Password", "login_count"},
		{"a@x.com", "pw", "3"},
		{"b@x.com", "pw2", "7"},
	}
}

// spyAdapter wraps the memory backend, counts calls and can inject failures
// or block writes.
type spyAdapter struct {
	*memory.Adapter

	mu        sync.Mutex
	calls     map[string]int
	readErrs  []error // returned by successive GetRange calls before delegating
	writeErr  error
	beforeRow func(op string)
}

func newSpy(sheets map[string][][]string) *spyAdapter {
	a := memory.New()
	for name, grid := range sheets {
		a.Seed(name, grid)
	}
	return &spyAdapter{Adapter: a, calls: make(map[string]int)}
}

func (s *spyAdapter) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *spyAdapter) record(op string) error {
	s.mu.Lock()
	s.calls[op]++
	hook := s.beforeRow
	var err error
	if op == "get_range" && len(s.readErrs) > 0 {
		err = s.readErrs[0]
		s.readErrs = s.readErrs[1:]
	} else if op != "get_range" {
		err = s.writeErr
	}
	s.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	return err
}

func (s *spyAdapter) GetRange(ctx context.Context, sheet, rng string) ([][]string, error) {
	if err := s.record("get_range"); err != nil {
		return nil, err
	}
	return s.Adapter.GetRange(ctx, sheet, rng)
}

func (s *spyAdapter) AppendRow(ctx context.Context, sheet string, values []interface{}) error {
	if err := s.record("append_row"); err != nil {
		return err
	}
	return s.Adapter.AppendRow(ctx, sheet, values)
}

func (s *spyAdapter) UpdateCell(ctx context.Context, sheet, cell string, value interface{}) error {
	if err := s.record("update_cell"); err != nil {
		return err
	}
	return s.Adapter.UpdateCell(ctx, sheet, cell, value)
}

func (s *spyAdapter) BatchUpdateCells(ctx context.Context, sheet string, updates []sheetstore.CellUpdate) error {
	if err := s.record("batch_update"); err != nil {
		return err
	}
	return s.Adapter.BatchUpdateCells(ctx, sheet, updates)
}

func (s *spyAdapter) DeleteRow(ctx context.Context, sheetID int64, row int) error {
	if err := s.record("delete_row"); err != nil {
		return err
	}
	return s.Adapter.DeleteRow(ctx, sheetID, row)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newNullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

// testConfig returns a client config with fast retries and a silent logger.
func testConfig() *sheetstore.Config {
	return &sheetstore.Config{
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
		Logger:        quietLogger(),
	}
}
