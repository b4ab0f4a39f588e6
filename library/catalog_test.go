package library

import (
	"errors"
	"testing"
)

func TestAddAndSearchBooks(t *testing.T) {
	lib := tempLib(t)
	addTestBook(t, lib, "The Go Programming Language", 3)
	addTestBook(t, lib, "The Art of War", 1)

	books, err := lib.ListBooks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("want 2 books, got %d", len(books))
	}

	res, err := lib.SearchBooks("Go Programming")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Title != "The Go Programming Language" {
		t.Fatalf("unexpected search result: %+v", res)
	}
	if res[0].Quantity != 3 || res[0].Available != 3 {
		t.Fatalf("new book should have all copies available, got %d/%d", res[0].Available, res[0].Quantity)
	}

	empty, err := lib.SearchBooks("  ")
	if err != nil || len(empty) != 0 {
		t.Fatalf("blank query should return nothing, got %v, %v", empty, err)
	}
}

func TestReserveAndReleaseCopy(t *testing.T) {
	lib := tempLib(t)
	bookID := addTestBook(t, lib, "Scarce", 1)

	if err := lib.ReserveCopy(bookID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := lib.ReserveCopy(bookID); !errors.Is(err, ErrBookUnavailable) {
		t.Fatalf("want ErrBookUnavailable, got %v", err)
	}

	if err := lib.ReleaseCopy(bookID); err != nil {
		t.Fatalf("release: %v", err)
	}
	b, _ := lib.GetBook(bookID)
	if b.Available != 1 {
		t.Fatalf("want 1 available, got %d", b.Available)
	}

	// Releasing a fully stocked book must surface an invariant breach, not
	// silently clamp.
	err := lib.ReleaseCopy(bookID)
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("want InvariantError, got %v", err)
	}
	b, _ = lib.GetBook(bookID)
	if b.Available != 1 || b.Quantity != 1 {
		t.Fatalf("counts must be untouched after refused release, got %d/%d", b.Available, b.Quantity)
	}
}

func TestReserveCopyNotFound(t *testing.T) {
	lib := tempLib(t)
	if err := lib.ReserveCopy(404); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("want ErrBookNotFound, got %v", err)
	}
	if err := lib.ReleaseCopy(404); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("want ErrBookNotFound, got %v", err)
	}
}

func TestUpdateBookCopies(t *testing.T) {
	lib := tempLib(t)
	actor := addTestLibrarian(t, lib)
	bookID := addTestBook(t, lib, "Popular", 2)
	m := addTestMember(t, lib, "Alice")

	if _, err := lib.Borrow(m.ID, bookID, actor, day(0)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Grow: one on loan, so 5 total leaves 4 available.
	b, err := lib.UpdateBookCopies(bookID, 5)
	if err != nil {
		t.Fatalf("grow copies: %v", err)
	}
	if b.Quantity != 5 || b.Available != 4 {
		t.Fatalf("want 4/5, got %d/%d", b.Available, b.Quantity)
	}

	// Shrinking below the on-loan count must fail.
	if _, err := lib.UpdateBookCopies(bookID, 0); err == nil {
		t.Fatalf("expected error shrinking below loaned copies")
	}
}
