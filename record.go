package sheetstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one decoded data row.
type Record struct {
	Key    int                    // Physical row number; row 1 holds the headers
	Values map[string]interface{} // Normalised header -> decoded value

	cells []string // row text as read, one entry per column
}

// sheetTimeLayouts are tried in order when a cell holds a date as text.
var sheetTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

// Clone returns a copy whose Values map can be modified independently.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	values := make(map[string]interface{}, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return &Record{Key: r.Key, Values: values, cells: r.cells}
}

// Cell returns the text of the column at idx exactly as it was read from the
// sheet, or "" when the row is shorter. Records not produced by Decode have
// no cell text.
func (r *Record) Cell(idx int) string {
	if idx < 0 || idx >= len(r.cells) {
		return ""
	}
	return r.cells[idx]
}

// MarshalJSON encodes the record as its field object.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Values)
}

// Has reports whether the record carries a field.
func (r *Record) Has(col string) bool {
	_, ok := r.Values[col]
	return ok
}

// Set stores a field the way the codec would write it back: times become
// RFC 3339 text and string lists a comma separated cell.
func (r *Record) Set(col string, value interface{}) {
	if r.Values == nil {
		r.Values = make(map[string]interface{})
	}
	switch v := value.(type) {
	case time.Time:
		r.Values[col] = v.Format(time.RFC3339)
	case []string:
		r.Values[col] = strings.Join(v, ",")
	case int:
		r.Values[col] = int64(v)
	default:
		r.Values[col] = value
	}
}

func (r *Record) lookup(col string) (interface{}, bool) {
	v, ok := r.Values[col]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// GetAsString returns the field as text, or def when it is absent.
func (r *Record) GetAsString(col string, def string) string {
	v, ok := r.lookup(col)
	if !ok {
		return def
	}
	if list, isList := v.([]string); isList {
		return strings.Join(list, ",")
	}
	return valueString(v)
}

// GetAsInt64 truncates numeric fields and parses integer text.
func (r *Record) GetAsInt64(col string, def int64) int64 {
	v, ok := r.lookup(col)
	if !ok {
		return def
	}
	if s, isText := v.(string); isText {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
		return def
	}
	if f, isNum := toFloat64(v); isNum {
		return int64(f)
	}
	return def
}

// GetAsFloat64 returns numeric fields and numeric text as float64.
func (r *Record) GetAsFloat64(col string, def float64) float64 {
	v, ok := r.lookup(col)
	if !ok {
		return def
	}
	if f, isNum := toFloat64(v); isNum {
		return f
	}
	return def
}

// GetAsBool accepts booleans, non-zero numbers, and the text "true" or "1".
func (r *Record) GetAsBool(col string, def bool) bool {
	v, ok := r.lookup(col)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true") || val == "1"
	}
	if f, isNum := toFloat64(v); isNum {
		return f != 0
	}
	return def
}

// GetAsStrings splits a comma separated cell. An empty cell yields an empty,
// non-nil slice.
func (r *Record) GetAsStrings(col string, def []string) []string {
	v, ok := r.lookup(col)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case []string:
		return val
	case string:
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	case []interface{}:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = fmt.Sprint(item)
		}
		return out
	}
	return def
}

// GetAsTime parses the date layouts a spreadsheet typically displays.
func (r *Record) GetAsTime(col string, def time.Time) time.Time {
	v, ok := r.lookup(col)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range sheetTimeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(val)); err == nil {
				return t
			}
		}
	}
	return def
}
