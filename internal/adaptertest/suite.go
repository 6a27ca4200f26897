// Package adaptertest checks that a spreadsheet backend behaves the way the
// data layer expects.
package adaptertest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	sheetstore "github.com/danielGPGT/go-sheetstore"
)

// Factory returns a fresh backend holding the given sheets.
type Factory func(t *testing.T, sheets map[string][][]string) sheetstore.Adapter

func usersGrid() [][]string {
	return [][]string{
		{"Email", "Password", "login_count"},
		{"a@x.com", "pw", "3"},
		{"b@x.com", "pw2", "7"},
	}
}

// Run executes the conformance suite against backends built by factory.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("get full range", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		got, err := a.GetRange(ctx, "Users", sheetstore.FullRange)
		if err != nil {
			t.Fatalf("GetRange() error = %v", err)
		}
		if !reflect.DeepEqual(got, usersGrid()) {
			t.Errorf("GetRange() = %v, want %v", got, usersGrid())
		}
	})

	t.Run("get header row", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		got, err := a.GetRange(ctx, "Users", sheetstore.HeaderRange)
		if err != nil {
			t.Fatalf("GetRange() error = %v", err)
		}
		want := [][]string{{"Email", "Password", "login_count"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("GetRange() = %v, want %v", got, want)
		}
	})

	t.Run("get single cell", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		got, err := a.GetRange(ctx, "Users", "A3")
		if err != nil {
			t.Fatalf("GetRange() error = %v", err)
		}
		if len(got) != 1 || len(got[0]) != 1 || got[0][0] != "b@x.com" {
			t.Errorf("GetRange(A3) = %v, want [[b@x.com]]", got)
		}
	})

	t.Run("missing sheet", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		if _, err := a.GetRange(ctx, "Nope", sheetstore.FullRange); !errors.Is(err, sheetstore.ErrNotFound) {
			t.Errorf("GetRange() error = %v, want ErrNotFound", err)
		}
		if err := a.UpdateCell(ctx, "Nope", "A1", "x"); !errors.Is(err, sheetstore.ErrNotFound) {
			t.Errorf("UpdateCell() error = %v, want ErrNotFound", err)
		}
		if _, err := a.SheetID(ctx, "Nope"); !errors.Is(err, sheetstore.ErrNotFound) {
			t.Errorf("SheetID() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("append row", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		if err := a.AppendRow(ctx, "Users", []interface{}{"c@x.com", sheetstore.Blank, int64(0)}); err != nil {
			t.Fatalf("AppendRow() error = %v", err)
		}
		got, err := a.GetRange(ctx, "Users", "A4:C4")
		if err != nil {
			t.Fatalf("GetRange() error = %v", err)
		}
		want := [][]string{{"c@x.com", "", "0"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("appended row = %v, want %v", got, want)
		}
	})

	t.Run("update cell", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		if err := a.UpdateCell(ctx, "Users", "C2", int64(4)); err != nil {
			t.Fatalf("UpdateCell() error = %v", err)
		}
		if err := a.UpdateCell(ctx, "Users", "B2", sheetstore.Blank); err != nil {
			t.Fatalf("UpdateCell() error = %v", err)
		}
		got, _ := a.GetRange(ctx, "Users", "A2:C2")
		want := [][]string{{"a@x.com", "", "4"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("row 2 = %v, want %v", got, want)
		}
	})

	t.Run("batch update cells", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		err := a.BatchUpdateCells(ctx, "Users", []sheetstore.CellUpdate{
			{Cell: "B3", Value: "secret"},
			{Cell: "C3", Value: true},
		})
		if err != nil {
			t.Fatalf("BatchUpdateCells() error = %v", err)
		}
		got, _ := a.GetRange(ctx, "Users", "A3:C3")
		want := [][]string{{"b@x.com", "secret", "TRUE"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("row 3 = %v, want %v", got, want)
		}
	})

	t.Run("delete row shifts rows up", func(t *testing.T) {
		a := factory(t, map[string][][]string{"Users": usersGrid()})
		id, err := a.SheetID(ctx, "Users")
		if err != nil {
			t.Fatalf("SheetID() error = %v", err)
		}
		if err := a.DeleteRow(ctx, id, 2); err != nil {
			t.Fatalf("DeleteRow() error = %v", err)
		}
		got, _ := a.GetRange(ctx, "Users", sheetstore.FullRange)
		want := [][]string{usersGrid()[0], usersGrid()[2]}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("after delete = %v, want %v", got, want)
		}
	})

	t.Run("sheets are independent", func(t *testing.T) {
		a := factory(t, map[string][][]string{
			"Users":  usersGrid(),
			"Events": {{"event_id", "name"}, {"E1", "Monaco"}},
		})
		usersID, err := a.SheetID(ctx, "Users")
		if err != nil {
			t.Fatalf("SheetID(Users) error = %v", err)
		}
		eventsID, err := a.SheetID(ctx, "Events")
		if err != nil {
			t.Fatalf("SheetID(Events) error = %v", err)
		}
		if usersID == eventsID {
			t.Fatalf("SheetID() returned %d for both sheets", usersID)
		}
		if err := a.DeleteRow(ctx, eventsID, 2); err != nil {
			t.Fatalf("DeleteRow() error = %v", err)
		}
		got, _ := a.GetRange(ctx, "Users", sheetstore.FullRange)
		if !reflect.DeepEqual(got, usersGrid()) {
			t.Errorf("Users changed after deleting from Events: %v", got)
		}
	})
}
