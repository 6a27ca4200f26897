package sheetstore

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// FullRange covers every row of the first 702 columns.
	FullRange = "A:ZZ"
	// HeaderRange is the header row.
	HeaderRange = "1:1"
)

// ColumnLetter converts a 0-based column index to its A1 letters (0 -> A, 26 -> AA).
func ColumnLetter(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ColumnIndex converts A1 column letters to a 0-based index.
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column reference", ErrBadRequest)
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: invalid column reference %q", ErrBadRequest, letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// CellRef builds an A1 reference from a 0-based column index and a 1-based row.
func CellRef(col, row int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}

// Range is a rectangular A1 range. Columns are 0-based, rows 1-based.
// ToCol < 0 and ToRow == 0 mean unbounded.
type Range struct {
	FromCol, ToCol int
	FromRow, ToRow int
}

// ParseRange parses "A:ZZ", "1:1", "C2" and "A1:C3" style references.
func ParseRange(ref string) (Range, error) {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		ref = ref[i+1:]
	}
	first, second, found := strings.Cut(ref, ":")
	if !found {
		second = first
	}
	c1, r1, err := splitRef(first)
	if err != nil {
		return Range{}, err
	}
	c2, r2, err := splitRef(second)
	if err != nil {
		return Range{}, err
	}
	rg := Range{FromCol: 0, ToCol: -1, FromRow: 1, ToRow: 0}
	if c1 != "" {
		if rg.FromCol, err = ColumnIndex(c1); err != nil {
			return Range{}, err
		}
	}
	if c2 != "" {
		if rg.ToCol, err = ColumnIndex(c2); err != nil {
			return Range{}, err
		}
	}
	if r1 > 0 {
		rg.FromRow = r1
	}
	if r2 > 0 {
		rg.ToRow = r2
	}
	if (rg.ToCol >= 0 && rg.ToCol < rg.FromCol) || (rg.ToRow > 0 && rg.ToRow < rg.FromRow) {
		return Range{}, fmt.Errorf("%w: inverted range %q", ErrBadRequest, ref)
	}
	return rg, nil
}

func splitRef(s string) (string, int, error) {
	i := 0
	for i < len(s) && ((s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z')) {
		i++
	}
	letters, digits := s[:i], s[i:]
	if letters == "" && digits == "" {
		return "", 0, fmt.Errorf("%w: empty range reference", ErrBadRequest)
	}
	if digits == "" {
		return letters, 0, nil
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return "", 0, fmt.Errorf("%w: invalid row in %q", ErrBadRequest, s)
	}
	return letters, row, nil
}

// Slice cuts the range out of a full grid. The result is shaped the way the
// Sheets API returns values: rows start at FromRow, trailing empty cells and
// trailing empty rows are dropped.
func (rg Range) Slice(grid [][]string) [][]string {
	out := make([][]string, 0)
	for r := rg.FromRow; r <= len(grid) && (rg.ToRow == 0 || r <= rg.ToRow); r++ {
		row := grid[r-1]
		end := len(row)
		if rg.ToCol >= 0 && rg.ToCol+1 < end {
			end = rg.ToCol + 1
		}
		var cells []string
		if rg.FromCol < end {
			cells = append([]string(nil), row[rg.FromCol:end]...)
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		if cells == nil {
			cells = []string{}
		}
		out = append(out, cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}
