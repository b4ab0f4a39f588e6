package library

import (
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	lib := tempLib(t)

	m, err := lib.RegisterMember(RegisterMemberParams{
		Username:   "jstudent",
		Password:   "student123",
		StudentID:  "STU001",
		Name:       "John Student",
		Email:      "student@university.edu",
		Department: "Computer Science",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if m.Status != MemberActive || m.TotalFines != 0 || m.PaidFines != 0 {
		t.Fatalf("new member should be active with zero fines, got %+v", m)
	}

	u, err := lib.AuthenticateUser("jstudent", "student123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Role != RoleStudent {
		t.Fatalf("want student role, got %q", u.Role)
	}
	if u.PasswordHash == "student123" {
		t.Fatalf("password stored in plain text")
	}

	if _, err := lib.AuthenticateUser("jstudent", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	if _, err := lib.AuthenticateUser("nobody", "student123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}

	byUser, err := lib.GetMemberByUser(u.ID)
	if err != nil || byUser.ID != m.ID {
		t.Fatalf("member by user: %v, %+v", err, byUser)
	}
}

func TestDuplicateStudentID(t *testing.T) {
	lib := tempLib(t)
	p := RegisterMemberParams{Username: "a1", Password: "x1234567", StudentID: "STU100", Name: "A"}
	if _, err := lib.RegisterMember(p); err != nil {
		t.Fatalf("first register: %v", err)
	}
	p.Username = "a2"
	if _, err := lib.RegisterMember(p); err == nil {
		t.Fatalf("expected unique constraint error on duplicate student id")
	}
	// The failed registration must not leave an orphaned user account.
	if _, err := lib.AuthenticateUser("a2", "x1234567"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("orphaned user survived rolled back registration: %v", err)
	}
}

func TestSetMemberStatus(t *testing.T) {
	lib := tempLib(t)
	m := addTestMember(t, lib, "Alice")

	if err := lib.SetMemberStatus(m.ID, MemberBlocked); err != nil {
		t.Fatalf("block: %v", err)
	}
	got, _ := lib.GetMember(m.ID)
	if got.Status != MemberBlocked {
		t.Fatalf("want blocked, got %q", got.Status)
	}

	if err := lib.SetMemberStatus(m.ID, "banned"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if err := lib.SetMemberStatus(999, MemberActive); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("want ErrMemberNotFound, got %v", err)
	}
}
