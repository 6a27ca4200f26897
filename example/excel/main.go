package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/danielGPGT/go-sheetstore/adapters/excel"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "sheetstore-example")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	adapter, err := excel.New(&excel.Config{FilePath: filepath.Join(dir, "bookings.xlsx")})
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}
	headers := []string{"Booking ID", "Status", "Package ID", "Total Price"}
	if err := adapter.EnsureSheet(ctx, "Bookings", headers); err != nil {
		return fmt.Errorf("failed to prepare sheet: %w", err)
	}

	client := sheetstore.New(adapter, excel.DefaultClientConfig())
	defer client.Close()

	bookings := [][]interface{}{
		{"B-1001", "pending", "P1,P2", 1200},
		{"B-1002", "confirmed", "P2", 640.5},
		{"B-1003", "pending", "P3", 980},
	}
	for _, row := range bookings {
		if err := client.Create(ctx, "Bookings", sheetstore.Payload{Values: row}); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
	}

	// Confirm a booking and adjust its price in one batch
	err = client.BulkUpdate(ctx, "Bookings", "Booking ID", "B-1001", []sheetstore.CellValue{
		{Column: "Status", Value: "confirmed"},
		{Column: "Total Price", Value: 1100},
	})
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	confirmed, err := client.List(ctx, "Bookings", sheetstore.Query{Conditions: []sheetstore.Condition{
		{Column: "status", Operator: "==", Value: "confirmed"},
	}})
	if err != nil {
		return fmt.Errorf("failed to list bookings: %w", err)
	}
	fmt.Printf("Confirmed bookings: %d\n", len(confirmed))
	for _, b := range confirmed {
		fmt.Printf("  %s packages=%v total=%.2f\n",
			b.GetAsString("booking_id", ""),
			b.GetAsStrings("package_id", nil),
			b.GetAsFloat64("total_price", 0))
	}

	if err := client.Delete(ctx, "Bookings", "Booking ID", "B-1003"); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	remaining, err := client.List(ctx, "Bookings", sheetstore.Query{})
	if err != nil {
		return err
	}
	fmt.Printf("Bookings after delete: %d\n", len(remaining))
	return nil
}
