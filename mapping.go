package sheetstore

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// FieldMapper translates a logical field name into the header text of a
// sheet column.
type FieldMapper interface {
	Column(sheet, field string) (string, bool)
}

// FieldMap is a static sheet -> field -> header table.
//
//	users:
//	  login_count: Login Count
//	  email: Email
type FieldMap map[string]map[string]string

// NewFieldMap returns an empty mapping table.
func NewFieldMap() FieldMap {
	return FieldMap{}
}

// Set adds or replaces one mapping.
func (m FieldMap) Set(sheet, field, header string) {
	fields, ok := m[sheet]
	if !ok {
		fields = make(map[string]string)
		m[sheet] = fields
	}
	fields[field] = header
}

// Column implements FieldMapper. The sheet is matched exactly first, then
// case-insensitively.
func (m FieldMap) Column(sheet, field string) (string, bool) {
	fields, ok := m[sheet]
	if !ok {
		for name, f := range m {
			if strings.EqualFold(name, sheet) {
				fields, ok = f, true
				break
			}
		}
	}
	if !ok {
		return "", false
	}
	header, ok := fields[field]
	return header, ok
}

// LoadFieldMap decodes a YAML mapping table.
func LoadFieldMap(r io.Reader) (FieldMap, error) {
	m := FieldMap{}
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		if err == io.EOF {
			return m, nil
		}
		return nil, fmt.Errorf("failed to decode field map: %w", err)
	}
	return m, nil
}

// LoadFieldMapFile reads a YAML mapping table from disk.
func LoadFieldMapFile(path string) (FieldMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open field map: %w", err)
	}
	defer f.Close()
	return LoadFieldMap(f)
}

// ResolveColumn finds the 0-based header index a logical column name refers to.
// The mapping table is consulted first, then exact header text, then headers
// whose normalised form equals the name. The first matching column wins.
func ResolveColumn(mapper FieldMapper, sheet string, headers []string, name string) (int, bool) {
	if mapper != nil {
		if header, ok := mapper.Column(sheet, name); ok {
			if idx := indexOf(headers, header); idx >= 0 {
				return idx, true
			}
		}
	}
	if idx := indexOf(headers, name); idx >= 0 {
		return idx, true
	}
	norm := NormalizeHeader(name)
	if norm == "" {
		return -1, false
	}
	for i, h := range headers {
		if NormalizeHeader(h) == norm {
			return i, true
		}
	}
	return -1, false
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}
