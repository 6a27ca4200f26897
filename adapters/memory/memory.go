// Package memory is an in-process spreadsheet backend. It serves tests and the
// demo mode of the server.
package memory

import (
	"context"
	"fmt"
	"sync"

	sheetstore "github.com/danielGPGT/go-sheetstore"
)

type sheet struct {
	id   int64
	grid [][]string
}

// Adapter keeps every sheet as a grid of display texts.
type Adapter struct {
	mu     sync.RWMutex
	sheets map[string]*sheet
	nextID int64
}

// New creates an empty backend.
func New() *Adapter {
	return &Adapter{sheets: make(map[string]*sheet), nextID: 1}
}

// Seed creates or replaces a sheet with a copy of grid.
func (a *Adapter) Seed(name string, grid [][]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.sheets[name]; ok {
		s.grid = copyGrid(grid)
		return
	}
	a.sheets[name] = &sheet{id: a.nextID, grid: copyGrid(grid)}
	a.nextID++
}

// Grid returns a copy of the raw grid of a sheet, or nil when it does not exist.
func (a *Adapter) Grid(name string) [][]string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.sheets[name]
	if !ok {
		return nil
	}
	return copyGrid(s.grid)
}

func (a *Adapter) lookup(name string) (*sheet, error) {
	s, ok := a.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: sheet %q does not exist", sheetstore.ErrNotFound, name)
	}
	return s, nil
}

// GetRange implements sheetstore.Adapter.
func (a *Adapter) GetRange(ctx context.Context, name, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", sheetstore.ErrUnavailable, err)
	}
	rg, err := sheetstore.ParseRange(rng)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	s, err := a.lookup(name)
	if err != nil {
		return nil, err
	}
	return rg.Slice(s.grid), nil
}

// AppendRow implements sheetstore.Adapter. The row lands below the last
// non-empty row.
func (a *Adapter) AppendRow(ctx context.Context, name string, values []interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", sheetstore.ErrUnavailable, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(name)
	if err != nil {
		return err
	}
	last := len(s.grid)
	for last > 0 && emptyRow(s.grid[last-1]) {
		last--
	}
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = sheetstore.CellText(v)
	}
	s.grid = append(s.grid[:last], row)
	return nil
}

// UpdateCell implements sheetstore.Adapter.
func (a *Adapter) UpdateCell(ctx context.Context, name, cell string, value interface{}) error {
	return a.BatchUpdateCells(ctx, name, []sheetstore.CellUpdate{{Cell: cell, Value: value}})
}

// BatchUpdateCells implements sheetstore.Adapter. Either every cell is
// written or none is.
func (a *Adapter) BatchUpdateCells(ctx context.Context, name string, updates []sheetstore.CellUpdate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", sheetstore.ErrUnavailable, err)
	}
	targets := make([]sheetstore.Range, len(updates))
	for i, u := range updates {
		rg, err := sheetstore.ParseRange(u.Cell)
		if err != nil {
			return err
		}
		if rg.ToRow != rg.FromRow || rg.ToCol != rg.FromCol {
			return fmt.Errorf("%w: %q is not a single cell", sheetstore.ErrBadRequest, u.Cell)
		}
		targets[i] = rg
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(name)
	if err != nil {
		return err
	}
	for i, rg := range targets {
		for len(s.grid) < rg.FromRow {
			s.grid = append(s.grid, []string{})
		}
		row := s.grid[rg.FromRow-1]
		for len(row) <= rg.FromCol {
			row = append(row, "")
		}
		row[rg.FromCol] = sheetstore.CellText(updates[i].Value)
		s.grid[rg.FromRow-1] = row
	}
	return nil
}

// SheetID implements sheetstore.Adapter.
func (a *Adapter) SheetID(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", sheetstore.ErrUnavailable, err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	s, err := a.lookup(name)
	if err != nil {
		return 0, err
	}
	return s.id, nil
}

// DeleteRow implements sheetstore.Adapter.
func (a *Adapter) DeleteRow(ctx context.Context, sheetID int64, row int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", sheetstore.ErrUnavailable, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.sheets {
		if s.id != sheetID {
			continue
		}
		if row < 1 || row > len(s.grid) {
			return fmt.Errorf("%w: row %d out of bounds", sheetstore.ErrBadRequest, row)
		}
		s.grid = append(s.grid[:row-1], s.grid[row:]...)
		return nil
	}
	return fmt.Errorf("%w: no sheet with id %d", sheetstore.ErrNotFound, sheetID)
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

func copyGrid(grid [][]string) [][]string {
	out := make([][]string, len(grid))
	for i, row := range grid {
		out[i] = append([]string{}, row...)
	}
	return out
}
