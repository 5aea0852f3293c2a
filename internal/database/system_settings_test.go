package database

import (
	"context"
	"testing"
)

func TestSystemSettingRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	ctx := context.Background()

	value, err := GetSystemSetting(ctx, db, "queue.checkpoint")
	if err != nil {
		t.Fatalf("get missing setting: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value for missing key, got %q", value)
	}

	if err := UpsertSystemSetting(ctx, db, "queue.checkpoint", "1700000000"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	value, err = GetSystemSetting(ctx, db, "queue.checkpoint")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "1700000000" {
		t.Fatalf("unexpected value: %q", value)
	}

	if err := UpsertSystemSetting(ctx, db, "queue.checkpoint", "1700000100"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	value, err = GetSystemSetting(ctx, db, "queue.checkpoint")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if value != "1700000100" {
		t.Fatalf("expected updated value, got %q", value)
	}
}

func TestUpsertSystemSettingRequiresKey(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	if err := UpsertSystemSetting(context.Background(), db, "  ", "x"); err == nil {
		t.Fatal("expected error for blank key")
	}
}
