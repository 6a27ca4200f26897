package sheetstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("backend unavailable")
	ErrInternal    = errors.New("internal error")
	ErrClosed      = errors.New("client is closed")
)

// ColumnError reports a column that does not resolve to any header of a sheet.
type ColumnError struct {
	Sheet     string
	Column    string
	Available []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q not found in sheet %q; available columns: %s",
		e.Column, e.Sheet, strings.Join(e.Available, ", "))
}

func (e *ColumnError) Unwrap() error { return ErrBadRequest }

// AsColumnError extracts a *ColumnError from err's chain.
func AsColumnError(err error) (*ColumnError, bool) {
	var ce *ColumnError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// classify wraps backend errors that do not already carry a known class as
// ErrUnavailable.
func classify(sheet string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrBadRequest, ErrNotFound, ErrConflict, ErrUnavailable, ErrInternal} {
		if errors.Is(err, known) {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
	}
	return fmt.Errorf("sheet %q: %w: %v", sheet, ErrUnavailable, err)
}
