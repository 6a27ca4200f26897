package main

import (
	"fmt"
	"strings"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key row for the key sheet",
	RunE:  runKeygen,
}

var (
	keyName   string
	keyRole   string
	keySheets []string
	keyDays   int
	keyAppend bool
)

func init() {
	keygenCmd.Flags().StringVar(&keyName, "name", "", "Key owner name")
	keygenCmd.Flags().StringVar(&keyRole, "role", "user", "Key role")
	keygenCmd.Flags().StringSliceVar(&keySheets, "sheets", []string{"all"}, "Sheets the key may access")
	keygenCmd.Flags().IntVar(&keyDays, "days", 365, "Days until the key expires (0 never expires)")
	keygenCmd.Flags().BoolVar(&keyAppend, "append", false, "Append the key to the key sheet instead of printing it only")
}

// newAPIKey builds the key sheet row for a freshly generated key.
func newAPIKey(now time.Time) map[string]interface{} {
	expiry := ""
	if keyDays > 0 {
		expiry = now.AddDate(0, 0, keyDays).Format("2006-01-02")
	}
	return map[string]interface{}{
		"api_key":        uuid.New().String(),
		"name":           keyName,
		"role":           keyRole,
		"status":         "active",
		"created_at":     now.Format(time.RFC3339),
		"expiry_date":    expiry,
		"allowed_sheets": strings.Join(keySheets, ","),
	}
}

func runKeygen(cmd *cobra.Command, args []string) error {
	row := newAPIKey(time.Now().UTC())
	fmt.Fprintln(cmd.OutOrStdout(), row["api_key"])

	if !keyAppend {
		return nil
	}

	store, err := openStore(cmd.Context(), log.StandardLogger(), nil)
	if err != nil {
		return err
	}
	defer store.Close()

	sheet := viper.GetString("auth.sheet")
	if err := store.Create(cmd.Context(), sheet, sheetstore.Payload{Fields: row}); err != nil {
		return fmt.Errorf("failed to append key to %s: %w", sheet, err)
	}
	log.WithFields(log.Fields{"sheet": sheet, "name": keyName}).Info("API key stored")
	return nil
}
