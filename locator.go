package sheetstore

import (
	"context"
	"fmt"
)

type location struct {
	row     int      // 1-based physical row
	idCol   int      // 0-based index of the id column
	headers []string // header row as read alongside the row
}

// Locate returns the 1-based physical row of the first data row whose
// idColumn cell equals idValue exactly. It always reads the sheet from the
// backend; the read cache is never consulted.
func (c *Client) Locate(ctx context.Context, sheet, idColumn, idValue string) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	loc, err := c.locate(ctx, sheet, idColumn, idValue)
	if err != nil {
		return 0, err
	}
	return loc.row, nil
}

func (c *Client) locate(ctx context.Context, sheet, idColumn, idValue string) (location, error) {
	grid, err := c.fetch(ctx, sheet, FullRange)
	if err != nil {
		return location{}, err
	}
	if len(grid) == 0 {
		return location{}, fmt.Errorf("%w: sheet %q is empty", ErrNotFound, sheet)
	}

	headers := HeaderRow(grid)
	idCol := indexOf(headers, idColumn)
	if idCol < 0 {
		return location{}, fmt.Errorf("%w: id column %q not found in sheet %q", ErrNotFound, idColumn, sheet)
	}

	for i := 1; i < len(grid); i++ {
		row := grid[i]
		if idCol < len(row) && row[idCol] == idValue {
			return location{row: i + 1, idCol: idCol, headers: headers}, nil
		}
	}
	return location{}, fmt.Errorf("%w: no row with %s = %q in sheet %q", ErrNotFound, idColumn, idValue, sheet)
}

// verify re-reads the id cell of a located row right before a write and fails
// with ErrConflict when another writer has shifted or changed the row.
func (c *Client) verify(ctx context.Context, sheet string, loc location, idValue string) error {
	if c.config.SkipWriteVerification {
		return nil
	}
	cell := CellRef(loc.idCol, loc.row)
	grid, err := c.fetch(ctx, sheet, cell)
	if err != nil {
		return err
	}
	got := ""
	if len(grid) > 0 && len(grid[0]) > 0 {
		got = grid[0][0]
	}
	if got != idValue {
		c.config.Metrics.WriteConflict(sheet)
		return fmt.Errorf("%w: row %d of sheet %q no longer holds %q (found %q)", ErrConflict, loc.row, sheet, idValue, got)
	}
	return nil
}
