package main

import (
	"context"
	"fmt"
	"log"
	"os"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/danielGPGT/go-sheetstore/adapters/googlesheets"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	adapter, err := googlesheets.NewFromCredentials(ctx,
		googlesheets.Config{SpreadsheetID: os.Getenv("SPREADSHEET_ID")},
		googlesheets.Credentials{File: "./service-account.json"},
	)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}

	client := sheetstore.New(adapter, googlesheets.DefaultClientConfig())
	defer client.Close()

	// Append a user by field name; unknown fields are ignored
	err = client.Create(ctx, "Users", sheetstore.Payload{Fields: map[string]interface{}{
		"email":       "john@example.com",
		"name":        "John Doe",
		"login_count": 0,
	}})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	users, err := client.List(ctx, "Users", sheetstore.Query{})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	fmt.Printf("Found %d users\n", len(users))
	for _, u := range users {
		fmt.Printf("  row %d: %s (%d logins)\n", u.Key, u.GetAsString("email", ""), u.GetAsInt64("login_count", 0))
	}

	// Bump the login counter of the new user
	john, err := client.Get(ctx, "Users", "Email", "john@example.com")
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	err = client.UpdateCell(ctx, "Users", "Email", "john@example.com",
		"login_count", john.GetAsInt64("login_count", 0)+1)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := client.Delete(ctx, "Users", "Email", "john@example.com"); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	fmt.Println("Done")
	return nil
}
