package db

import (
	"path/filepath"
	"testing"
)

func TestInitDB_SeedsOffOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugs.db")

	db, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	var v string
	if err := db.QueryRow(`SELECT value FROM desired_state WHERE id = 1`).Scan(&v); err != nil {
		t.Fatalf("select seed: %v", err)
	}
	if v != "OFF" {
		t.Fatalf("seeded value = %q, want OFF", v)
	}
	if _, err := db.Exec(`UPDATE desired_state SET value = 'ON' WHERE id = 1`); err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = db.Close()

	db, err = InitDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if err := db.QueryRow(`SELECT value FROM desired_state WHERE id = 1`).Scan(&v); err != nil {
		t.Fatalf("select after reopen: %v", err)
	}
	if v != "ON" {
		t.Fatalf("reopen overwrote state: %q", v)
	}
}

func TestInitDB_Constraints(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "plugs.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`UPDATE desired_state SET value = 'purple' WHERE id = 1`); err == nil {
		t.Fatalf("CHECK constraint on value not enforced")
	}
	if _, err := db.Exec(`INSERT INTO desired_state (id, value, updated_at) VALUES (2, 'ON', 'x')`); err == nil {
		t.Fatalf("single-row CHECK not enforced")
	}
}
