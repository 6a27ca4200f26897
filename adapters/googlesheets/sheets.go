package googlesheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsAdaptor implements sheetstore.Adapter for one Google spreadsheet
type SheetsAdaptor struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewSheetsAdaptor creates a new Google Sheets adaptor with provided options
func NewSheetsAdaptor(ctx context.Context, config Config, opts ...option.ClientOption) (*SheetsAdaptor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsAdaptor{
		service:       service,
		spreadsheetID: config.SpreadsheetID,
	}, nil
}

// GetRange implements sheetstore.Adapter
func (a *SheetsAdaptor) GetRange(ctx context.Context, sheet, rng string) ([][]string, error) {
	resp, err := a.service.Spreadsheets.Values.Get(a.spreadsheetID, a1(sheet, rng)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("get range", err)
	}

	grid := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		grid[i] = make([]string, len(row))
		for j, v := range row {
			grid[i][j] = cellText(v)
		}
	}
	return grid, nil
}

// AppendRow implements sheetstore.Adapter
func (a *SheetsAdaptor) AppendRow(ctx context.Context, sheet string, values []interface{}) error {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = wireValue(v)
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}

	_, err := a.service.Spreadsheets.Values.Append(a.spreadsheetID, a1(sheet, "A1"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classify("append row", err)
	}
	return nil
}

// UpdateCell implements sheetstore.Adapter
func (a *SheetsAdaptor) UpdateCell(ctx context.Context, sheet, cell string, value interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{{wireValue(value)}}}

	_, err := a.service.Spreadsheets.Values.Update(a.spreadsheetID, a1(sheet, cell), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("update cell", err)
	}
	return nil
}

// BatchUpdateCells implements sheetstore.Adapter
func (a *SheetsAdaptor) BatchUpdateCells(ctx context.Context, sheet string, updates []sheetstore.CellUpdate) error {
	data := make([]*sheets.ValueRange, len(updates))
	for i, u := range updates {
		data[i] = &sheets.ValueRange{
			Range:  a1(sheet, u.Cell),
			Values: [][]interface{}{{wireValue(u.Value)}},
		}
	}
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}

	_, err := a.service.Spreadsheets.Values.BatchUpdate(a.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return classify("batch update", err)
	}
	return nil
}

// SheetID implements sheetstore.Adapter
func (a *SheetsAdaptor) SheetID(ctx context.Context, sheet string) (int64, error) {
	resp, err := a.service.Spreadsheets.Get(a.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, classify("get spreadsheet", err)
	}
	for _, s := range resp.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: sheet %q does not exist", sheetstore.ErrNotFound, sheet)
}

// DeleteRow implements sheetstore.Adapter
func (a *SheetsAdaptor) DeleteRow(ctx context.Context, sheetID int64, row int) error {
	if row < 1 {
		return fmt.Errorf("%w: row %d out of bounds", sheetstore.ErrBadRequest, row)
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
					// Zero is a valid sheet id and start index
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}

	_, err := a.service.Spreadsheets.BatchUpdate(a.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return classify("delete row", err)
	}
	return nil
}

// a1 prefixes a range with the quoted sheet name.
func a1(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}

// classify maps Sheets API failures onto the store's error classes.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s: %v", sheetstore.ErrNotFound, op, err)
		case gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Error(), "Unable to parse range"):
			return fmt.Errorf("%w: %s: %v", sheetstore.ErrNotFound, op, err)
		case gerr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: %s: %v", sheetstore.ErrBadRequest, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", sheetstore.ErrUnavailable, op, err)
}

// cellText converts a formatted cell from the API response to text
func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// wireValue converts a value to what the API accepts with RAW input.
// An empty string clears the cell; nil would leave it untouched.
func wireValue(v interface{}) interface{} {
	enc := sheetstore.EncodeValue(v)
	if sheetstore.IsBlank(enc) {
		return ""
	}
	return enc
}
