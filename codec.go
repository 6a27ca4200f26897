package sheetstore

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type blankCell struct{}

func (blankCell) String() string { return "" }

// Blank is the explicit empty-cell marker. Writing Blank clears a cell, where
// a cell left out of a write keeps whatever the backend already holds.
var Blank interface{} = blankCell{}

// IsBlank reports whether v is the Blank marker.
func IsBlank(v interface{}) bool {
	_, ok := v.(blankCell)
	return ok
}

// NormalizeHeader derives a record field name from header text:
// trimmed, lower-cased, whitespace runs replaced by an underscore.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), "_"))
}

// DecodeCell converts formatted cell text into a typed value.
func DecodeCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

// Decode turns a grid whose first row is the header row into records keyed by
// normalised header. Record.Key holds the 1-based physical row. When two
// headers normalise to the same field the rightmost column wins.
func Decode(grid [][]string) []*Record {
	records := make([]*Record, 0)
	if len(grid) < 2 {
		return records
	}
	keys := make([]string, len(grid[0]))
	for j, h := range grid[0] {
		keys[j] = NormalizeHeader(h)
	}
	for i, row := range grid[1:] {
		record := &Record{
			Key:    i + 2,
			Values: make(map[string]interface{}, len(keys)),
			cells:  append([]string(nil), row...),
		}
		for j, key := range keys {
			if key == "" {
				continue
			}
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			record.Values[key] = DecodeCell(cell)
		}
		records = append(records, record)
	}
	return records
}

// HeaderRow returns a copy of the first row of a grid.
func HeaderRow(grid [][]string) []string {
	if len(grid) == 0 {
		return []string{}
	}
	return append([]string(nil), grid[0]...)
}

// Encode lays fields out as one row in header order. Columns no field maps to
// are written empty; a field whose value is nil or "" becomes Blank. Fields
// that resolve to no header are returned in dropped.
func Encode(mapper FieldMapper, sheet string, headers []string, fields map[string]interface{}) ([]interface{}, []string) {
	row := make([]interface{}, len(headers))
	for i := range row {
		row[i] = ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var dropped []string
	for _, name := range names {
		idx, ok := ResolveColumn(mapper, sheet, headers, name)
		if !ok {
			dropped = append(dropped, name)
			continue
		}
		row[idx] = EncodeValue(fields[name])
	}
	return row, dropped
}

// EncodeValue normalises a Go value into something a backend can write:
// nil and "" become Blank, numbers become int64 or float64, times RFC3339.
func EncodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return Blank
	case blankCell:
		return Blank
	case string:
		if val == "" {
			return Blank
		}
		return val
	case bool:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// CellText renders an encoded value as the text a spreadsheet would display.
func CellText(v interface{}) string {
	switch val := EncodeValue(v).(type) {
	case blankCell:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// PositionalRow lays values out in header order, dropping values beyond the
// header width.
func PositionalRow(headers []string, values []interface{}) ([]interface{}, int) {
	row := make([]interface{}, len(headers))
	for i := range row {
		row[i] = ""
		if i < len(values) {
			row[i] = EncodeValue(values[i])
		}
	}
	extra := len(values) - len(headers)
	if extra < 0 {
		extra = 0
	}
	return row, extra
}
