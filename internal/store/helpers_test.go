package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/cohabit/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedOwner creates a user with a personal team.
func seedOwner(t *testing.T, db *sql.DB, email string) (userID, teamID int64) {
	t.Helper()
	u, err := NewUserStore(db).Create(email, "Owner")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	team, err := NewTeamStore(db).CreatePersonal(u.ID, "Personal")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	return u.ID, team.ID
}
