package excel

import "errors"

var (
	// ErrMissingFilePath is returned when file path is not specified
	ErrMissingFilePath = errors.New("file path is required")

	// ErrInvalidFileFormat is returned when the file is not a valid Excel workbook
	ErrInvalidFileFormat = errors.New("invalid Excel file format")
)
