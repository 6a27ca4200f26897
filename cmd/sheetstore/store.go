package main

import (
	"context"
	"fmt"
	"os"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/danielGPGT/go-sheetstore/adapters/excel"
	"github.com/danielGPGT/go-sheetstore/adapters/googlesheets"
	"github.com/danielGPGT/go-sheetstore/adapters/memory"
	"github.com/danielGPGT/go-sheetstore/notifiers/appsscript"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// newAdapter builds the configured spreadsheet backend.
func newAdapter(ctx context.Context) (sheetstore.Adapter, error) {
	switch backend := viper.GetString("backend"); backend {
	case "google":
		return googlesheets.NewFromCredentials(ctx,
			googlesheets.Config{SpreadsheetID: viper.GetString("spreadsheet_id")},
			googlesheets.Credentials{
				JSON: viper.GetString("google.credentials"),
				File: viper.GetString("google.credentials_file"),

				ClientEmail: viper.GetString("google.client_email"),
				PrivateKey:  viper.GetString("google.private_key"),
			})
	case "excel":
		return excel.New(&excel.Config{FilePath: viper.GetString("excel.path")})
	case "memory":
		m := memory.New()
		if path := viper.GetString("memory.seed"); path != "" {
			if err := seedMemory(m, path); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// seedMemory loads sheets from a YAML file of sheet name -> rows.
func seedMemory(m *memory.Adapter, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var sheets map[string][][]string
	if err := yaml.Unmarshal(data, &sheets); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	for name, grid := range sheets {
		m.Seed(name, grid)
	}
	return nil
}

// clientConfig builds the data layer configuration.
func clientConfig(logger log.FieldLogger, metrics sheetstore.MetricsRecorder) (*sheetstore.Config, error) {
	cfg := &sheetstore.Config{
		CacheTTL:              viper.GetDuration("cache.ttl"),
		SweepInterval:         viper.GetDuration("cache.sweep_interval"),
		MaxRetries:            viper.GetInt("retries"),
		RetryInterval:         viper.GetDuration("retry_interval"),
		OperationTimeout:      viper.GetDuration("operation_timeout"),
		SkipWriteVerification: !viper.GetBool("verify_writes"),
		NotifyQueueSize:       viper.GetInt("notify.queue_size"),
		NotifyTimeout:         viper.GetDuration("notify.timeout"),
		Logger:                logger,
		Metrics:               metrics,
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = -1
	}

	if path := viper.GetString("mapping_file"); path != "" {
		mapping, err := sheetstore.LoadFieldMapFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Mapper = mapping
	}

	if url := viper.GetString("notify.url"); url != "" {
		var actions map[string]string
		if viper.IsSet("notify.actions") {
			actions = viper.GetStringMapString("notify.actions")
		}
		notifier, err := appsscript.New(appsscript.Config{
			URL:           url,
			Actions:       actions,
			DefaultAction: viper.GetString("notify.default_action"),
			Timeout:       viper.GetDuration("notify.timeout"),
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		cfg.Notifier = notifier
	}
	return cfg, nil
}

// openStore wires the backend and the data layer together.
func openStore(ctx context.Context, logger log.FieldLogger, metrics sheetstore.MetricsRecorder) (*sheetstore.Client, error) {
	adapter, err := newAdapter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", viper.GetString("backend"), err)
	}
	cfg, err := clientConfig(logger, metrics)
	if err != nil {
		return nil, err
	}
	return sheetstore.New(adapter, cfg), nil
}
