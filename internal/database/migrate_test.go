package database

import (
	"strings"
	"testing"
)

func TestLoadMigrations_SortedAndComplete(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ms) == 0 || ms[0].version != "0001_init" {
		t.Fatalf("expected 0001_init first, got %+v", ms)
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].version >= ms[i].version {
			t.Fatalf("migrations out of order: %s before %s", ms[i-1].version, ms[i].version)
		}
	}
	for _, table := range []string{"profiles", "calls", "batch_uploads", "call_items", "audit_events"} {
		if !strings.Contains(ms[0].sql, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("expected table %s in initial schema", table)
		}
	}
}
