package googlesheets

import (
	"errors"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
)

// ErrMissingSpreadsheetID is returned when no spreadsheet id is configured
var ErrMissingSpreadsheetID = errors.New("spreadsheet id is required")

// Config represents configuration specific to Google Sheets adapter
type Config struct {
	SpreadsheetID string
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.SpreadsheetID == "" {
		return ErrMissingSpreadsheetID
	}
	return nil
}

// DefaultClientConfig returns the recommended default configuration for Google Sheets
func DefaultClientConfig() *sheetstore.Config {
	return &sheetstore.Config{
		CacheTTL:         30 * time.Second,
		SweepInterval:    time.Minute,
		MaxRetries:       3,
		RetryInterval:    500 * time.Millisecond,
		OperationTimeout: 30 * time.Second,
	}
}
