package library

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

var testSeq atomic.Int64

func tempLib(t *testing.T) *Library {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	lib, err := Open(cfg)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func addTestBook(t *testing.T, lib *Library, title string, copies int) int64 {
	t.Helper()
	id, err := lib.AddBook(Book{Title: title, Author: "Test Author", Quantity: copies})
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	return id
}

func addTestMember(t *testing.T, lib *Library, name string) *Member {
	t.Helper()
	n := testSeq.Add(1)
	m, err := lib.RegisterMember(RegisterMemberParams{
		Username:  fmt.Sprintf("user%d", n),
		Password:  "secret123",
		StudentID: fmt.Sprintf("STU%04d", n),
		Name:      name,
	})
	if err != nil {
		t.Fatalf("register member: %v", err)
	}
	return m
}

func addTestLibrarian(t *testing.T, lib *Library) int64 {
	t.Helper()
	n := testSeq.Add(1)
	id, err := lib.CreateUser(fmt.Sprintf("librarian%d", n), "lib123", RoleLibrarian, "Library Manager", "")
	if err != nil {
		t.Fatalf("create librarian: %v", err)
	}
	return id
}

// day returns a fixed base date shifted by n days, so loan math in tests is
// deterministic.
func day(n int) time.Time {
	return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// mustReconcile asserts the member's cached fine aggregates still match the
// ledger. Tests call it after every mutating operation.
func mustReconcile(t *testing.T, lib *Library, memberID int64) {
	t.Helper()
	if err := lib.ReconcileMemberFines(memberID); err != nil {
		t.Fatalf("reconcile member %d: %v", memberID, err)
	}
}
