package excel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/xuri/excelize/v2"
)

// Adapter implements sheetstore.Adapter on a local Excel workbook
type Adapter struct {
	config *Config
	mu     sync.RWMutex
}

// New creates a new Excel adapter with the given configuration
func New(config *Config) (*Adapter, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Copy to avoid external modifications
	configCopy := *config

	return &Adapter{
		config: &configCopy,
	}, nil
}

// open loads the workbook. A missing file is reported as ErrNotFound.
func (a *Adapter) open(ctx context.Context) (*excelize.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", sheetstore.ErrUnavailable, err)
	}
	f, err := excelize.OpenFile(a.config.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: workbook %s does not exist", sheetstore.ErrNotFound, a.config.FilePath)
		}
		return nil, fmt.Errorf("%w: %w: %v", sheetstore.ErrInternal, ErrInvalidFileFormat, err)
	}
	return f, nil
}

func requireSheet(f *excelize.File, sheet string) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("%w: invalid sheet name %q: %v", sheetstore.ErrBadRequest, sheet, err)
	}
	if idx == -1 {
		return fmt.Errorf("%w: sheet %q does not exist", sheetstore.ErrNotFound, sheet)
	}
	return nil
}

// GetRange implements sheetstore.Adapter
func (a *Adapter) GetRange(ctx context.Context, sheet, rng string) ([][]string, error) {
	rg, err := sheetstore.ParseRange(rng)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	f, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := requireSheet(f, sheet); err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get rows: %v", sheetstore.ErrInternal, err)
	}
	return rg.Slice(rows), nil
}

// AppendRow implements sheetstore.Adapter. The row lands below the last
// non-empty row.
func (a *Adapter) AppendRow(ctx context.Context, sheet string, values []interface{}) error {
	return a.modify(ctx, sheet, func(f *excelize.File) error {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("%w: failed to get rows: %v", sheetstore.ErrInternal, err)
		}
		last := len(rows)
		for last > 0 && emptyRow(rows[last-1]) {
			last--
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = cellValue(v)
		}
		return f.SetSheetRow(sheet, sheetstore.CellRef(0, last+1), &row)
	})
}

// UpdateCell implements sheetstore.Adapter
func (a *Adapter) UpdateCell(ctx context.Context, sheet, cell string, value interface{}) error {
	return a.BatchUpdateCells(ctx, sheet, []sheetstore.CellUpdate{{Cell: cell, Value: value}})
}

// BatchUpdateCells implements sheetstore.Adapter. The workbook is saved once
// after every cell is set.
func (a *Adapter) BatchUpdateCells(ctx context.Context, sheet string, updates []sheetstore.CellUpdate) error {
	for _, u := range updates {
		if _, _, err := excelize.CellNameToCoordinates(u.Cell); err != nil {
			return fmt.Errorf("%w: invalid cell %q: %v", sheetstore.ErrBadRequest, u.Cell, err)
		}
	}
	return a.modify(ctx, sheet, func(f *excelize.File) error {
		for _, u := range updates {
			if err := f.SetCellValue(sheet, u.Cell, cellValue(u.Value)); err != nil {
				return fmt.Errorf("failed to set %s: %w", u.Cell, err)
			}
		}
		return nil
	})
}

// SheetID implements sheetstore.Adapter. The id is the worksheet index.
func (a *Adapter) SheetID(ctx context.Context, sheet string) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, err := a.open(ctx)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx == -1 {
		return 0, fmt.Errorf("%w: sheet %q does not exist", sheetstore.ErrNotFound, sheet)
	}
	return int64(idx), nil
}

// DeleteRow implements sheetstore.Adapter
func (a *Adapter) DeleteRow(ctx context.Context, sheetID int64, row int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	sheet := f.GetSheetName(int(sheetID))
	if sheet == "" {
		return fmt.Errorf("%w: no sheet with id %d", sheetstore.ErrNotFound, sheetID)
	}
	if row < 1 {
		return fmt.Errorf("%w: row %d out of bounds", sheetstore.ErrBadRequest, row)
	}
	if err := f.RemoveRow(sheet, row); err != nil {
		return fmt.Errorf("failed to remove row %d: %w", row, err)
	}
	return a.save(f)
}

// EnsureSheet creates the workbook and the sheet when missing and writes
// headers into row 1 of a newly created sheet.
func (a *Adapter) EnsureSheet(ctx context.Context, sheet string, headers []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var f *excelize.File
	if _, err := os.Stat(a.config.FilePath); err == nil {
		if f, err = a.open(ctx); err != nil {
			return err
		}
	} else {
		f = excelize.NewFile()
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("%w: invalid sheet name %q: %v", sheetstore.ErrBadRequest, sheet, err)
	}
	if idx != -1 {
		return nil
	}

	// A fresh workbook carries a default sheet; rename it instead of adding one.
	if len(f.GetSheetList()) == 1 && f.GetSheetName(0) == "Sheet1" && sheet != "Sheet1" {
		if rows, _ := f.GetRows("Sheet1"); len(rows) == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename default sheet: %w", err)
			}
			idx = 0
		}
	}
	if idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return a.save(f)
}

func (a *Adapter) modify(ctx context.Context, sheet string, fn func(f *excelize.File) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := requireSheet(f, sheet); err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return a.save(f)
}

func (a *Adapter) save(f *excelize.File) error {
	dir := filepath.Dir(a.config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(a.config.FilePath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

// cellValue maps an encoded value onto what excelize stores natively.
func cellValue(v interface{}) interface{} {
	enc := sheetstore.EncodeValue(v)
	if sheetstore.IsBlank(enc) {
		return ""
	}
	return enc
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
