package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := storeVersion(db.conn)
	if err != nil {
		t.Fatalf("storeVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"articles", "article_classification", "user_preferences", "user_article_interactions"} {
		var n int
		err := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if n != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := storeVersion(db2.conn)
	if err != nil {
		t.Fatalf("storeVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "future.db")
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := raw.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err == nil {
		db.Close()
		t.Fatal("expected error for schema newer than supported")
	}
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("expected ErrSchemaTooNew, got %v", err)
	}
}

func TestUpgradeFromFirstVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "v1.db")
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()

	if err := applyStep(raw, migrations[0]); err != nil {
		t.Fatalf("applying first step: %v", err)
	}
	if v, _ := storeVersion(raw); v != 1 {
		t.Fatalf("expected v1 after first step, got %d", v)
	}

	if err := upgradeSchema(raw); err != nil {
		t.Fatalf("upgradeSchema: %v", err)
	}
	if v, _ := storeVersion(raw); v != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), v)
	}
	var n int
	err = raw.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_classification_category'").Scan(&n)
	if err != nil || n != 1 {
		t.Errorf("expected lookup index after upgrade, got %d (err %v)", n, err)
	}
}

func TestStoreVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := storeVersion(conn)
	if err != nil {
		t.Fatalf("storeVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}
