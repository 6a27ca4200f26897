package sheetstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// CellValue is one column assignment of an update.
type CellValue struct {
	Column string      `json:"column"`
	Value  interface{} `json:"value"`
}

// Payload is the body of a create. Values lays cells out positionally in
// header order; Fields assigns them by logical field name. Exactly one of
// them must be set.
type Payload struct {
	Values []interface{}
	Fields map[string]interface{}
}

// rowColumn is the pending key column used by deletes.
const rowColumn = ""

// UpdateCell writes a single cell of the row whose idColumn holds idValue.
// A second update of the same cell while the first is in flight fails with
// ErrConflict.
func (c *Client) UpdateCell(ctx context.Context, sheet, idColumn, idValue, column string, value interface{}) error {
	return c.update(ctx, sheet, idColumn, idValue, []CellValue{{Column: column, Value: value}}, false)
}

// BulkUpdate writes several cells of one row in a single batch. All columns
// are reserved and resolved before anything is written.
func (c *Client) BulkUpdate(ctx context.Context, sheet, idColumn, idValue string, cells []CellValue) error {
	if len(cells) == 0 {
		return fmt.Errorf("%w: bulk update requires at least one column", ErrBadRequest)
	}
	return c.update(ctx, sheet, idColumn, idValue, cells, true)
}

func (c *Client) update(ctx context.Context, sheet, idColumn, idValue string, cells []CellValue, batch bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := validateTarget(sheet, idColumn, idValue); err != nil {
		return err
	}
	keys := make([]pendingKey, 0, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, cell := range cells {
		if cell.Column == "" {
			return fmt.Errorf("%w: column is required (entry %d)", ErrBadRequest, i)
		}
		if seen[cell.Column] {
			return fmt.Errorf("%w: column %q given more than once", ErrBadRequest, cell.Column)
		}
		seen[cell.Column] = true
		if err := ValidateValue(cell.Value); err != nil {
			return fmt.Errorf("column %q: %w", cell.Column, err)
		}
		keys = append(keys, pendingKey{sheet: sheet, id: idValue, column: cell.Column})
	}

	release, err := c.pending.acquire(keys...)
	if err != nil {
		c.config.Metrics.WriteConflict(sheet)
		return err
	}
	defer release()

	loc, err := c.locate(ctx, sheet, idColumn, idValue)
	if err != nil {
		return err
	}

	updates := make([]CellUpdate, len(cells))
	for i, cell := range cells {
		idx, ok := ResolveColumn(c.config.Mapper, sheet, loc.headers, cell.Column)
		if !ok {
			return &ColumnError{Sheet: sheet, Column: cell.Column, Available: nonEmpty(loc.headers)}
		}
		updates[i] = CellUpdate{Cell: CellRef(idx, loc.row), Value: EncodeValue(cell.Value)}
	}

	if err := c.verify(ctx, sheet, loc, idValue); err != nil {
		return err
	}

	if batch {
		err = c.call(ctx, sheet, "batch_update", func(ctx context.Context) error {
			return c.adapter.BatchUpdateCells(ctx, sheet, updates)
		})
	} else {
		err = c.call(ctx, sheet, "update_cell", func(ctx context.Context) error {
			return c.adapter.UpdateCell(ctx, sheet, updates[0].Cell, updates[0].Value)
		})
	}
	if err != nil {
		return err
	}

	c.changed(sheet, OpUpdate, loc.row, logrus.Fields{"cells": len(updates)})
	return nil
}

// Create appends a row built against the current header row of the sheet.
func (c *Client) Create(ctx context.Context, sheet string, payload Payload) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if sheet == "" {
		return fmt.Errorf("%w: sheet name is required", ErrBadRequest)
	}
	if (payload.Values == nil) == (payload.Fields == nil) {
		return fmt.Errorf("%w: payload must be either an array or an object", ErrBadRequest)
	}
	for i, v := range payload.Values {
		if err := ValidateValue(v); err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
	}
	for name, v := range payload.Fields {
		if err := ValidateValue(v); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}

	grid, err := c.fetch(ctx, sheet, HeaderRange)
	if err != nil {
		return err
	}
	headers := HeaderRow(grid)
	if len(nonEmpty(headers)) == 0 {
		return fmt.Errorf("%w: sheet %q has no header row", ErrBadRequest, sheet)
	}

	logger := c.log.WithField("sheet", sheet)
	var row []interface{}
	if payload.Values != nil {
		var extra int
		row, extra = PositionalRow(headers, payload.Values)
		if extra > 0 {
			logger.WithField("extra", extra).Warn("values beyond the header width dropped")
		}
	} else {
		var dropped []string
		row, dropped = Encode(c.config.Mapper, sheet, headers, payload.Fields)
		if len(dropped) > 0 {
			logger.WithField("fields", dropped).Warn("fields without a matching column dropped")
		}
	}

	err = c.call(ctx, sheet, "append_row", func(ctx context.Context) error {
		return c.adapter.AppendRow(ctx, sheet, row)
	})
	if err != nil {
		return err
	}

	c.changed(sheet, OpAdd, 0, nil)
	return nil
}

// Delete removes the row whose idColumn holds idValue.
func (c *Client) Delete(ctx context.Context, sheet, idColumn, idValue string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := validateTarget(sheet, idColumn, idValue); err != nil {
		return err
	}

	release, err := c.pending.acquire(pendingKey{sheet: sheet, id: idValue, column: rowColumn})
	if err != nil {
		c.config.Metrics.WriteConflict(sheet)
		return err
	}
	defer release()

	loc, err := c.locate(ctx, sheet, idColumn, idValue)
	if err != nil {
		return err
	}

	var sheetID int64
	err = c.call(ctx, sheet, "sheet_id", func(ctx context.Context) error {
		var e error
		sheetID, e = c.adapter.SheetID(ctx, sheet)
		return e
	})
	if err != nil {
		return err
	}

	if err := c.verify(ctx, sheet, loc, idValue); err != nil {
		return err
	}

	err = c.call(ctx, sheet, "delete_row", func(ctx context.Context) error {
		return c.adapter.DeleteRow(ctx, sheetID, loc.row)
	})
	if err != nil {
		return err
	}

	c.changed(sheet, OpDelete, loc.row, nil)
	return nil
}

// changed invalidates the cached read of a sheet and queues the external
// notification.
func (c *Client) changed(sheet string, op OperationType, row int, fields logrus.Fields) {
	c.cache.Invalidate(sheet)

	entry := c.log.WithFields(logrus.Fields{"sheet": sheet, "op": op.String(), "row": row})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info("sheet updated")

	if c.dispatcher != nil {
		c.dispatcher.Dispatch(Change{Sheet: sheet, Op: op, Row: row, At: c.config.Now()})
	}
}

// ValidateValue accepts strings, numbers, booleans and nil.
func ValidateValue(v interface{}) error {
	switch v.(type) {
	case nil, string, bool, json.Number, blankCell,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	default:
		return fmt.Errorf("%w: value must be a string, number, boolean or null, got %T", ErrBadRequest, v)
	}
}

func validateTarget(sheet, idColumn, idValue string) error {
	switch {
	case sheet == "":
		return fmt.Errorf("%w: sheet name is required", ErrBadRequest)
	case idColumn == "":
		return fmt.Errorf("%w: id column is required", ErrBadRequest)
	case idValue == "":
		return fmt.Errorf("%w: id value is required", ErrBadRequest)
	}
	return nil
}

func nonEmpty(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
