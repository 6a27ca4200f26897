package sheetstore

import (
	"fmt"
	"sync"
)

type pendingKey struct {
	sheet  string
	id     string
	column string
}

func (k pendingKey) String() string {
	return fmt.Sprintf("%s-%s-%s", k.sheet, k.id, k.column)
}

// pendingSet tracks cells that have a write in flight.
type pendingSet struct {
	mu   sync.Mutex
	keys map[pendingKey]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{keys: make(map[pendingKey]struct{})}
}

// acquire marks all keys in flight, or none of them if any is already taken.
// The returned release func must be called exactly once.
func (p *pendingSet) acquire(keys ...pendingKey) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range keys {
		if _, busy := p.keys[k]; busy {
			return nil, fmt.Errorf("%w: update already in progress for %s", ErrConflict, k)
		}
	}
	for _, k := range keys {
		p.keys[k] = struct{}{}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for _, k := range keys {
				delete(p.keys, k)
			}
		})
	}, nil
}

func (p *pendingSet) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
