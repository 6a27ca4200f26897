package excel

import (
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
)

// Config holds configuration for the Excel adapter
type Config struct {
	FilePath string // Path to the workbook; each worksheet is one sheet
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return ErrMissingFilePath
	}
	return nil
}

// DefaultClientConfig returns the recommended client configuration for a
// local workbook: short cache lifetime, no retries.
func DefaultClientConfig() *sheetstore.Config {
	return &sheetstore.Config{
		CacheTTL:   5 * time.Second,
		MaxRetries: -1,
	}
}
