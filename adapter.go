package sheetstore

import "context"

// OperationType represents the type of a write
type OperationType int

const (
	OpAdd OperationType = iota
	OpUpdate
	OpDelete
)

func (o OperationType) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// CellUpdate is one cell write inside a batch.
type CellUpdate struct {
	Cell  string // A1 reference without the sheet prefix, e.g. "C2"
	Value interface{}
}

// Adapter defines the primitive operations a spreadsheet backend offers.
//
// Ranges are A1 notation without the sheet prefix ("A:ZZ", "1:1", "C2").
// Implementations report a missing spreadsheet or sheet with ErrNotFound,
// rejected requests with ErrBadRequest and transport or quota failures with
// ErrUnavailable.
type Adapter interface {
	// GetRange returns the formatted cell texts of a range, row major.
	// Trailing empty cells and rows may be omitted.
	GetRange(ctx context.Context, sheet, rng string) ([][]string, error)

	// AppendRow inserts a row after the last non-empty row of the sheet.
	AppendRow(ctx context.Context, sheet string, values []interface{}) error

	// UpdateCell writes a single cell.
	UpdateCell(ctx context.Context, sheet, cell string, value interface{}) error

	// BatchUpdateCells writes several cells in one request.
	BatchUpdateCells(ctx context.Context, sheet string, updates []CellUpdate) error

	// SheetID resolves the numeric id of a sheet tab.
	SheetID(ctx context.Context, sheet string) (int64, error)

	// DeleteRow removes a 1-based physical row and shifts the rows below up.
	DeleteRow(ctx context.Context, sheetID int64, row int) error
}
