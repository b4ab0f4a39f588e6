package library

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on with errors.Is.
var (
	ErrBookNotFound      = errors.New("book not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrBorrowingNotFound = errors.New("borrowing not found")

	ErrBookUnavailable    = errors.New("no copies available")
	ErrAlreadyReturned    = errors.New("borrowing already returned")
	ErrRenewalNotAllowed  = errors.New("cannot renew overdue borrowing")
	ErrOverPayment        = errors.New("amount exceeds outstanding balance")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrBusy is returned after bounded retries when the store stays locked.
	ErrBusy = errors.New("database busy, try again")
)

// IneligibleError reports why a member may not borrow. OverdueCount is set
// when the reason is outstanding overdue items, so callers can display it.
type IneligibleError struct {
	MemberID     int64
	Reason       string
	OverdueCount int
}

func (e *IneligibleError) Error() string {
	if e.OverdueCount > 0 {
		return fmt.Sprintf("member %d ineligible: %s (%d overdue)", e.MemberID, e.Reason, e.OverdueCount)
	}
	return fmt.Sprintf("member %d ineligible: %s", e.MemberID, e.Reason)
}

// InvariantError reports stored state that should be impossible: available
// above quantity, paid fines above total fines, a cached aggregate diverging
// from the ledger. The operation that saw it is aborted, never patched over.
type InvariantError struct {
	Entity string
	ID     int64
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation on %s %d: %s", e.Entity, e.ID, e.Detail)
}
