package library

import (
	"errors"
	"testing"
)

// lateBorrowing sets up a member with a returned, 6-days-late borrowing
// carrying a 300 cent charge.
func lateBorrowing(t *testing.T, lib *Library) (*Member, *Borrowing, int64) {
	t.Helper()
	actor := addTestLibrarian(t, lib)
	m := addTestMember(t, lib, "Tardy")
	bookID := addTestBook(t, lib, "Late Book", 1)

	b, err := lib.Borrow(m.ID, bookID, actor, day(0))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	ret, err := lib.Return(b.ID, actor, day(20))
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if ret.FineAmount != 300 {
		t.Fatalf("fixture expects 300 cent charge, got %d", ret.FineAmount)
	}
	return m, ret, actor
}

func TestPayFine(t *testing.T) {
	lib := tempLib(t)
	m, b, actor := lateBorrowing(t, lib)

	ft, err := lib.Pay(m.ID, b.ID, 100, "cash", actor)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if ft.Type != FinePaid || ft.Amount != 100 || ft.PaymentMethod != "cash" {
		t.Fatalf("unexpected ledger entry: %+v", ft)
	}
	mustReconcile(t, lib, m.ID)

	out, err := lib.Outstanding(b.ID)
	if err != nil || out != 200 {
		t.Fatalf("want 200 outstanding, got %d, %v", out, err)
	}
	got, _ := lib.GetBorrowing(b.ID)
	if got.FinePaid {
		t.Fatalf("partially paid fine must not be marked settled")
	}

	if _, err := lib.Pay(m.ID, b.ID, 200, "card", actor); err != nil {
		t.Fatalf("pay rest: %v", err)
	}
	mustReconcile(t, lib, m.ID)

	got, _ = lib.GetBorrowing(b.ID)
	if !got.FinePaid {
		t.Fatalf("fully paid fine should be marked settled")
	}
	member, _ := lib.GetMember(m.ID)
	if member.TotalFines != 300 || member.PaidFines != 300 {
		t.Fatalf("want 300/300, got %d/%d", member.TotalFines, member.PaidFines)
	}
}

func TestOverPayment(t *testing.T) {
	lib := tempLib(t)
	m, b, actor := lateBorrowing(t, lib)

	before, _ := lib.ListFineTransactions(m.ID)

	_, err := lib.Pay(m.ID, b.ID, 301, "cash", actor)
	if !errors.Is(err, ErrOverPayment) {
		t.Fatalf("want ErrOverPayment, got %v", err)
	}

	// The refused payment must leave no ledger row.
	after, _ := lib.ListFineTransactions(m.ID)
	if len(after) != len(before) {
		t.Fatalf("ledger grew on refused payment: %d -> %d", len(before), len(after))
	}
	mustReconcile(t, lib, m.ID)

	if _, err := lib.Pay(m.ID, b.ID, 0, "cash", actor); err == nil {
		t.Fatalf("zero payment must be rejected")
	}
	if _, err := lib.Pay(m.ID, b.ID, -50, "cash", actor); err == nil {
		t.Fatalf("negative payment must be rejected")
	}
}

func TestWaive(t *testing.T) {
	lib := tempLib(t)
	m, b, actor := lateBorrowing(t, lib)

	if _, err := lib.Pay(m.ID, b.ID, 100, "cash", actor); err != nil {
		t.Fatalf("pay: %v", err)
	}
	ft, err := lib.Waive(m.ID, b.ID, 200, actor, "first offense")
	if err != nil {
		t.Fatalf("waive: %v", err)
	}
	if ft.Type != FineWaived {
		t.Fatalf("unexpected ledger entry: %+v", ft)
	}
	mustReconcile(t, lib, m.ID)

	out, _ := lib.Outstanding(b.ID)
	if out != 0 {
		t.Fatalf("want 0 outstanding, got %d", out)
	}
	got, _ := lib.GetBorrowing(b.ID)
	if !got.FinePaid {
		t.Fatalf("settled borrowing should be flagged paid")
	}

	member, _ := lib.GetMember(m.ID)
	if member.TotalFines != 100 || member.PaidFines != 100 {
		t.Fatalf("waive should reduce total: want 100/100, got %d/%d", member.TotalFines, member.PaidFines)
	}

	// Waiving beyond the outstanding balance is refused.
	if _, err := lib.Waive(m.ID, b.ID, 1, actor, ""); !errors.Is(err, ErrOverPayment) {
		t.Fatalf("want ErrOverPayment, got %v", err)
	}
}

func TestManualCharge(t *testing.T) {
	lib := tempLib(t)
	actor := addTestLibrarian(t, lib)
	m := addTestMember(t, lib, "Clumsy")
	bookID := addTestBook(t, lib, "Fragile", 1)

	b, _ := lib.Borrow(m.ID, bookID, actor, day(0))
	ret, _ := lib.Return(b.ID, actor, day(1))

	ft, err := lib.Charge(m.ID, ret.ID, 500, actor, "water damage")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if ft.Type != FineCharged || ft.Notes != "water damage" {
		t.Fatalf("unexpected ledger entry: %+v", ft)
	}
	mustReconcile(t, lib, m.ID)

	got, _ := lib.GetBorrowing(ret.ID)
	if got.FineAmount != 500 || got.FinePaid {
		t.Fatalf("borrowing should carry the new charge: %+v", got)
	}

	sum, err := lib.MemberFineSummary(m.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Charged != 500 || sum.Outstanding != 500 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestLedgerOwnership(t *testing.T) {
	lib := tempLib(t)
	actor := addTestLibrarian(t, lib)
	alice := addTestMember(t, lib, "Alice")
	mallory := addTestMember(t, lib, "Mallory")
	bookID := addTestBook(t, lib, "Borrowed", 1)

	b, _ := lib.Borrow(alice.ID, bookID, actor, day(0))
	lib.Return(b.ID, actor, day(20))

	// Paying against someone else's borrowing is refused.
	if _, err := lib.Pay(mallory.ID, b.ID, 100, "cash", actor); !errors.Is(err, ErrBorrowingNotFound) {
		t.Fatalf("want ErrBorrowingNotFound, got %v", err)
	}
	if _, err := lib.Pay(alice.ID, 999, 100, "cash", actor); !errors.Is(err, ErrBorrowingNotFound) {
		t.Fatalf("want ErrBorrowingNotFound, got %v", err)
	}
}

func TestFineSummaryAcrossBorrowings(t *testing.T) {
	lib := tempLib(t)
	actor := addTestLibrarian(t, lib)
	m := addTestMember(t, lib, "Serial")
	b1 := addTestBook(t, lib, "First", 1)
	b2 := addTestBook(t, lib, "Second", 1)

	l1, _ := lib.Borrow(m.ID, b1, actor, day(0))
	l2, _ := lib.Borrow(m.ID, b2, actor, day(0))
	lib.Return(l1.ID, actor, day(16)) // 2 days late: 100
	lib.Return(l2.ID, actor, day(18)) // 4 days late: 200

	lib.Pay(m.ID, l1.ID, 100, "cash", actor)
	mustReconcile(t, lib, m.ID)

	sum, err := lib.MemberFineSummary(m.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Charged != 300 || sum.Paid != 100 || sum.Waived != 0 || sum.Outstanding != 200 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	txs, err := lib.ListFineTransactions(m.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("want 3 ledger rows, got %d", len(txs))
	}

	// Outstanding is tracked per borrowing: l2 still owes everything.
	out, _ := lib.Outstanding(l2.ID)
	if out != 200 {
		t.Fatalf("l2 outstanding should be 200, got %d", out)
	}
}
