package store

import (
	"testing"
)

func TestTeamCreatePersonal(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ts := NewTeamStore(db)

	u, _ := us.Create("alice@example.com", "Alice")
	team, err := ts.CreatePersonal(u.ID, "Alice's agreements")
	if err != nil {
		t.Fatalf("create personal team: %v", err)
	}
	if team.Name != "Alice's agreements" {
		t.Errorf("name = %q, want %q", team.Name, "Alice's agreements")
	}

	m, err := ts.GetMember(team.ID, u.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m == nil {
		t.Fatal("expected owner membership, got nil")
	}
	if m.Role != "owner" {
		t.Errorf("role = %q, want %q", m.Role, "owner")
	}
}

func TestTeamListTeamsForUser(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ts := NewTeamStore(db)

	alice, _ := us.Create("alice@example.com", "Alice")
	bob, _ := us.Create("bob@example.com", "Bob")
	t1, _ := ts.CreatePersonal(alice.ID, "Alice")
	t2, _ := ts.Create("Shared")
	if _, err := ts.AddMember(t2.ID, alice.ID, "member"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	ts.CreatePersonal(bob.ID, "Bob")

	teams, err := ts.ListTeamsForUser(alice.ID)
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("len = %d, want 2", len(teams))
	}
	if teams[0].ID != t1.ID || teams[1].ID != t2.ID {
		t.Errorf("team ids = [%d %d], want [%d %d]", teams[0].ID, teams[1].ID, t1.ID, t2.ID)
	}
}

func TestTeamAddMemberDuplicate(t *testing.T) {
	db := openTestDB(t)
	userID, teamID := seedOwner(t, db, "alice@example.com")

	if _, err := NewTeamStore(db).AddMember(teamID, userID, "member"); err == nil {
		t.Fatal("expected error for duplicate membership, got nil")
	}
}

func TestTeamGetMemberNotFound(t *testing.T) {
	db := openTestDB(t)
	_, teamID := seedOwner(t, db, "alice@example.com")

	m, err := NewTeamStore(db).GetMember(teamID, 999)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m != nil {
		t.Error("expected nil for non-member")
	}
}
