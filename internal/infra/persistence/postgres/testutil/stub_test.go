package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_, err := conn.ExecContext(ctx, "INSERT INTO lots (id, code) VALUES ($1, $2)", []driver.NamedValue{
		{Value: "lot-1"},
		{Value: "LOTE-2024-001"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := len(conn.Rows("lots")); got != 1 {
		t.Fatalf("expected 1 lot row, got %d", got)
	}

	rows, err := conn.QueryContext(ctx, "SELECT id, code FROM lots ORDER BY id", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("next: %v", err)
	}
	if dest[0] != "lot-1" || dest[1] != "LOTE-2024-001" {
		t.Fatalf("unexpected row values: %v", dest)
	}

	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE logistics, transformations, lots", nil); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if len(conn.Rows("lots")) != 0 {
		t.Fatalf("expected truncate to clear lots")
	}
	if !conn.Executed("truncate table") {
		t.Fatalf("expected truncate to be recorded")
	}
}

func TestStubDBDeleteAndFailures(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.Tables["lots"] = []map[string]any{{"id": "lot-1"}}
	if _, err := conn.ExecContext(ctx, "DELETE FROM lots", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(conn.Rows("lots")) != 0 {
		t.Fatalf("expected delete to clear lots")
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO lots (id, code) VALUES ($1)", []driver.NamedValue{{Value: "x"}}); err == nil {
		t.Fatalf("expected column/arg mismatch")
	}
	conn.FailTables = map[string]bool{"lots": true}
	if _, err := conn.QueryContext(ctx, "SELECT id FROM lots", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
}
