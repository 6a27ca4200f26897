package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielGPGT/go-sheetstore/api"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), listenAddr(cmd))
	},
}

func init() {
	serveCmd.Flags().String("addr", ":3000", "Listen address")
	serveCmd.Flags().Bool("auth", false, "Require API keys from the key sheet")
	cobra.CheckErr(viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")))
	cobra.CheckErr(viper.BindPFlag("auth.enabled", serveCmd.Flags().Lookup("auth")))
}

// listenAddr falls back to the PORT variable of hosting platforms when no
// address is configured explicitly.
func listenAddr(cmd *cobra.Command) string {
	explicit := cmd.Flags().Changed("addr") || os.Getenv("SHEETSTORE_SERVER_ADDR") != "" || viper.InConfig("server.addr")
	if port := viper.GetString("port"); port != "" && !explicit {
		return ":" + port
	}
	return viper.GetString("server.addr")
}

func serve(ctx context.Context, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.StandardLogger()
	metrics := api.NewMetrics()

	store, err := openStore(ctx, logger, metrics)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := api.Options{
		Logger:         logger,
		Metrics:        metrics,
		AllowedOrigins: viper.GetStringSlice("cors.origins"),
		APILimit:       api.Limit{Requests: viper.GetInt("rate.api.requests"), Window: viper.GetDuration("rate.api.window")},
		SheetsLimit:    api.Limit{Requests: viper.GetInt("rate.sheets.requests"), Window: viper.GetDuration("rate.sheets.window")},
	}
	if viper.GetBool("auth.enabled") {
		opts.Auth = api.NewSheetKeyAuthenticator(store, api.KeyAuthConfig{
			Sheet:        viper.GetString("auth.sheet"),
			RequiredRole: viper.GetString("auth.role"),
			CacheTTL:     viper.GetDuration("auth.cache_ttl"),
		})
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(store, opts),
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("listening for HTTP")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Signalled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
