package library

import (
	"database/sql"
	"fmt"
	"time"
)

// Eligibility gate: a pure read-query over member status and open borrowings.
// Rules run in order and the first failure wins:
//  1. the member's account must be active
//  2. the member must have no overdue borrowings

const (
	reasonNotActive  = "account not active"
	reasonHasOverdue = "has overdue items"
)

// CheckEligibility reports whether the member may start a new borrowing.
// It returns nil when eligible and an *IneligibleError otherwise.
func (l *Library) CheckEligibility(memberID int64, now time.Time) error {
	return checkEligibility(l.db, memberID, now)
}

// checkEligibility runs against any executor so Borrow can re-check inside
// its own transaction, against the rows it is about to mutate.
func checkEligibility(q dbtx, memberID int64, now time.Time) error {
	var status MemberStatus
	err := q.QueryRow(`SELECT status FROM members WHERE id=?`, memberID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member %d: %w", memberID, ErrMemberNotFound)
	}
	if err != nil {
		return fmt.Errorf("check eligibility: %w", err)
	}
	if status != MemberActive {
		return &IneligibleError{MemberID: memberID, Reason: reasonNotActive}
	}

	overdue, err := countOverdue(q, memberID, now)
	if err != nil {
		return fmt.Errorf("check eligibility: %w", err)
	}
	if overdue > 0 {
		return &IneligibleError{MemberID: memberID, Reason: reasonHasOverdue, OverdueCount: overdue}
	}
	return nil
}

func countOverdue(q dbtx, memberID int64, now time.Time) (int, error) {
	var n int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM borrowings WHERE member_id=? AND status=? AND due_date < ?`,
		memberID, BorrowingBorrowed, dateOnly(now)).Scan(&n)
	return n, err
}
