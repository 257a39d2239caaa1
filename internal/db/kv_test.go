package db

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupKVTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func TestKVStoreGetMissing(t *testing.T) {
	store := NewKVStore(setupKVTestDB(t))

	value, ok, err := store.Get(KeyHabits)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok || value != "" {
		t.Fatalf("expected missing key, got ok=%v value=%q", ok, value)
	}
}

func TestKVStoreSetOverwrites(t *testing.T) {
	store := NewKVStore(setupKVTestDB(t))

	if err := store.Set(KeyMonthlyTarget, "500"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Set(KeyMonthlyTarget, "800"); err != nil {
		t.Fatalf("second Set returned error: %v", err)
	}

	value, ok, err := store.Get(KeyMonthlyTarget)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if value != "800" {
		t.Fatalf("expected overwritten value, got %q", value)
	}

	var count int64
	store.db.Model(&KVEntry{}).Where("key = ?", KeyMonthlyTarget).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row, got %d", count)
	}
}

func TestKVStoreSetManyAndGetMany(t *testing.T) {
	store := NewKVStore(setupKVTestDB(t))

	if err := store.SetMany(map[string]string{
		KeyHabits: `[]`,
		KeyLogs:   `[{"date":"2024-05-01","completedHabits":[]}]`,
	}); err != nil {
		t.Fatalf("SetMany returned error: %v", err)
	}

	values, err := store.GetMany([]string{KeyHabits, KeyLogs, KeyMonthlyTarget})
	if err != nil {
		t.Fatalf("GetMany returned error: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(values))
	}
	if values[KeyHabits] != `[]` {
		t.Fatalf("unexpected habits blob %q", values[KeyHabits])
	}
	if _, exists := values[KeyMonthlyTarget]; exists {
		t.Fatal("missing key should not be returned")
	}
}
