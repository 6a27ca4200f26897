package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sheetstore",
	Short: "REST data service backed by a spreadsheet",
	Long:  "sheetstore exposes the tabs of a Google spreadsheet (or a local workbook) as REST resources with cached reads and guarded cell writes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	SilenceUsage: true,
}

var cfgFile string
var verbose bool

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sheetstore.yaml or ./config/sheetstore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().String("backend", "google", "Spreadsheet backend: google, excel or memory")
	rootCmd.PersistentFlags().String("spreadsheet-id", "", "Google spreadsheet id")
	rootCmd.PersistentFlags().String("excel-path", "", "Workbook path for the excel backend")

	cobra.CheckErr(viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend")))
	cobra.CheckErr(viper.BindPFlag("spreadsheet_id", rootCmd.PersistentFlags().Lookup("spreadsheet-id")))
	cobra.CheckErr(viper.BindPFlag("excel.path", rootCmd.PersistentFlags().Lookup("excel-path")))

	setDefaults()

	rootCmd.AddCommand(serveCmd, keygenCmd)
}

func setDefaults() {
	viper.SetDefault("backend", "google")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("cache.ttl", "30s")
	viper.SetDefault("cache.sweep_interval", "1m")
	viper.SetDefault("retries", 3)
	viper.SetDefault("retry_interval", "500ms")
	viper.SetDefault("operation_timeout", "30s")
	viper.SetDefault("verify_writes", true)
	viper.SetDefault("cors.origins", []string{"http://localhost:5173"})
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.sheet", "api_keys")
	viper.SetDefault("auth.cache_ttl", "5m")
	viper.SetDefault("rate.api.requests", 100)
	viper.SetDefault("rate.api.window", "15m")
	viper.SetDefault("rate.sheets.requests", 30)
	viper.SetDefault("rate.sheets.window", "1m")
	viper.SetDefault("notify.queue_size", 64)
	viper.SetDefault("notify.timeout", "10s")
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("sheetstore")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// SHEETSTORE_SERVER_ADDR -> server.addr
	viper.SetEnvPrefix("SHEETSTORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Environment names used by existing deployments
	cobra.CheckErr(viper.BindEnv("spreadsheet_id", "SHEETSTORE_SPREADSHEET_ID", "SPREADSHEET_ID"))
	cobra.CheckErr(viper.BindEnv("google.credentials", "SHEETSTORE_GOOGLE_CREDENTIALS", "GOOGLE_CREDENTIALS"))
	cobra.CheckErr(viper.BindEnv("google.credentials_file", "SHEETSTORE_GOOGLE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"))
	cobra.CheckErr(viper.BindEnv("google.client_email", "SHEETSTORE_GOOGLE_CLIENT_EMAIL", "GOOGLE_CLIENT_EMAIL"))
	cobra.CheckErr(viper.BindEnv("google.private_key", "SHEETSTORE_GOOGLE_PRIVATE_KEY", "GOOGLE_PRIVATE_KEY"))
	cobra.CheckErr(viper.BindEnv("notify.url", "SHEETSTORE_NOTIFY_URL", "APPS_SCRIPT_URL"))
	cobra.CheckErr(viper.BindEnv("port", "PORT"))

	err := viper.ReadInConfig()

	notFound := &viper.ConfigFileNotFoundError{}
	switch {
	case err != nil && !errors.As(err, notFound):
		cobra.CheckErr(err)
	case err != nil:
		// The config file is optional
	default:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() error {
	level, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
