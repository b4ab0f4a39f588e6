package library

import (
	"database/sql"
	"fmt"
	"time"
)

// Borrowing lifecycle engine. Every mutation here is one transaction: the
// copy-count move and the borrowing-record change commit together or not at
// all, so an abandoned call leaves no reserved copy without a borrowing and
// no borrowing without a copy.

const borrowingColumns = `id, book_id, member_id, borrowed_by, borrow_date, due_date, return_date, status, fine_amount, fine_paid, notes, created_at`

func scanBorrowing(row interface{ Scan(...any) error }) (*Borrowing, error) {
	var b Borrowing
	var ret sql.NullTime
	err := row.Scan(&b.ID, &b.BookID, &b.MemberID, &b.BorrowedBy, &b.BorrowDate,
		&b.DueDate, &ret, &b.Status, &b.FineAmount, &b.FinePaid, &b.Notes, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ret.Valid {
		t := ret.Time
		b.ReturnDate = &t
	}
	return &b, nil
}

// Borrow lends one copy of a book to a member, recorded by actor. The
// eligibility check runs inside the same transaction as the copy
// reservation, against the authoritative rows.
func (l *Library) Borrow(memberID, bookID, actorID int64, now time.Time) (*Borrowing, error) {
	var borrowing *Borrowing
	err := l.withTxRetry(func(tx *sql.Tx) error {
		if err := checkEligibility(tx, memberID, now); err != nil {
			return err
		}
		if err := reserveCopy(tx, bookID); err != nil {
			return err
		}

		borrowDate := dateOnly(now)
		dueDate := borrowDate.AddDate(0, 0, l.cfg.LoanPeriodDays)
		res, err := tx.Exec(
			`INSERT INTO borrowings(book_id,member_id,borrowed_by,borrow_date,due_date,status)
             VALUES(?,?,?,?,?,?)`,
			bookID, memberID, actorID, borrowDate, dueDate, BorrowingBorrowed)
		if err != nil {
			return fmt.Errorf("create borrowing: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		borrowing, err = scanBorrowing(tx.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return borrowing, nil
}

// Return closes a borrowing: marks it returned, charges the overdue fine if
// any, and releases the copy, all in one transaction.
func (l *Library) Return(borrowingID, actorID int64, now time.Time) (*Borrowing, error) {
	var borrowing *Borrowing
	err := l.withTxRetry(func(tx *sql.Tx) error {
		b, err := scanBorrowing(tx.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, borrowingID))
		if err == sql.ErrNoRows {
			return fmt.Errorf("borrowing %d: %w", borrowingID, ErrBorrowingNotFound)
		}
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}
		if b.Status != BorrowingBorrowed {
			return fmt.Errorf("borrowing %d: %w", borrowingID, ErrAlreadyReturned)
		}

		returnDate := dateOnly(now)
		fine := int64(overdueDays(b.DueDate, now)) * l.cfg.FineRatePerDay
		finePaid := fine == 0 // nothing owed, nothing outstanding

		_, err = tx.Exec(
			`UPDATE borrowings SET status=?, return_date=?, fine_amount=?, fine_paid=? WHERE id=?`,
			BorrowingReturned, returnDate, fine, finePaid, borrowingID)
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}

		if fine > 0 {
			charge := &FineTransaction{
				BorrowingID: borrowingID,
				MemberID:    b.MemberID,
				Amount:      fine,
				Type:        FineCharged,
				ProcessedBy: actorID,
				Notes:       fmt.Sprintf("overdue %d day(s)", overdueDays(b.DueDate, now)),
			}
			if err := appendFineTx(tx, charge); err != nil {
				return err
			}
		}

		if err := releaseCopy(tx, b.BookID); err != nil {
			return err
		}

		borrowing, err = scanBorrowing(tx.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, borrowingID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return borrowing, nil
}

// Renew extends the due date by one loan period. Overdue loans cannot be
// renewed; the member has to return the book first. Renewal touches neither
// copy counts nor fines.
func (l *Library) Renew(borrowingID int64, now time.Time) (*Borrowing, error) {
	var borrowing *Borrowing
	err := l.withTxRetry(func(tx *sql.Tx) error {
		b, err := scanBorrowing(tx.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, borrowingID))
		if err == sql.ErrNoRows {
			return fmt.Errorf("borrowing %d: %w", borrowingID, ErrBorrowingNotFound)
		}
		if err != nil {
			return fmt.Errorf("renew: %w", err)
		}
		if b.Status != BorrowingBorrowed {
			return fmt.Errorf("borrowing %d: %w", borrowingID, ErrAlreadyReturned)
		}
		if dateOnly(now).After(b.DueDate) {
			return fmt.Errorf("borrowing %d: %w", borrowingID, ErrRenewalNotAllowed)
		}

		newDue := b.DueDate.AddDate(0, 0, l.cfg.LoanPeriodDays)
		if _, err := tx.Exec(`UPDATE borrowings SET due_date=? WHERE id=?`, newDue, borrowingID); err != nil {
			return fmt.Errorf("renew: %w", err)
		}

		borrowing, err = scanBorrowing(tx.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, borrowingID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return borrowing, nil
}

// GetBorrowing fetches a single borrowing record.
func (l *Library) GetBorrowing(id int64) (*Borrowing, error) {
	b, err := scanBorrowing(l.db.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("borrowing %d: %w", id, ErrBorrowingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get borrowing: %w", err)
	}
	return b, nil
}

// overdueDays is how many whole calendar days now is past due, never negative.
func overdueDays(due, now time.Time) int {
	d := int(dateOnly(now).Sub(dateOnly(due)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ---------------------------------------------------------------------------
// Listing queries
// ---------------------------------------------------------------------------

const borrowingViewQuery = `
SELECT b.id, b.book_id, b.member_id, b.borrowed_by, b.borrow_date, b.due_date,
       b.return_date, b.status, b.fine_amount, b.fine_paid, b.notes, b.created_at,
       bk.title, bk.author, m.name
FROM borrowings b
JOIN books bk ON bk.id = b.book_id
JOIN members m ON m.id = b.member_id`

func (l *Library) queryBorrowingViews(now time.Time, where string, args ...any) ([]*BorrowingView, error) {
	rows, err := l.db.Query(borrowingViewQuery+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list borrowings: %w", err)
	}
	defer rows.Close()

	views := []*BorrowingView{}
	for rows.Next() {
		var v BorrowingView
		var ret sql.NullTime
		err := rows.Scan(&v.ID, &v.BookID, &v.MemberID, &v.BorrowedBy, &v.BorrowDate,
			&v.DueDate, &ret, &v.Status, &v.FineAmount, &v.FinePaid, &v.Notes, &v.CreatedAt,
			&v.BookTitle, &v.BookAuthor, &v.MemberName)
		if err != nil {
			return nil, fmt.Errorf("list borrowings: %w", err)
		}
		if ret.Valid {
			t := ret.Time
			v.ReturnDate = &t
		}
		if v.Status == BorrowingBorrowed {
			v.DaysOverdue = overdueDays(v.DueDate, now)
			v.AccruedFine = int64(v.DaysOverdue) * l.cfg.FineRatePerDay
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}

// ListCurrentBorrowings returns a member's open loans, soonest due first.
func (l *Library) ListCurrentBorrowings(memberID int64, now time.Time) ([]*BorrowingView, error) {
	return l.queryBorrowingViews(now,
		` WHERE b.member_id=? AND b.status=? ORDER BY b.due_date ASC`,
		memberID, BorrowingBorrowed)
}

// ListOverdue returns a member's overdue loans.
func (l *Library) ListOverdue(memberID int64, now time.Time) ([]*BorrowingView, error) {
	return l.queryBorrowingViews(now,
		` WHERE b.member_id=? AND b.status=? AND b.due_date < ? ORDER BY b.due_date ASC`,
		memberID, BorrowingBorrowed, dateOnly(now))
}

// ListAllOverdue returns every overdue loan in the system.
func (l *Library) ListAllOverdue(now time.Time) ([]*BorrowingView, error) {
	return l.queryBorrowingViews(now,
		` WHERE b.status=? AND b.due_date < ? ORDER BY b.due_date ASC`,
		BorrowingBorrowed, dateOnly(now))
}

// BorrowingHistory returns a member's closed loans, most recent first.
func (l *Library) BorrowingHistory(memberID int64, now time.Time) ([]*BorrowingView, error) {
	return l.queryBorrowingViews(now,
		` WHERE b.member_id=? AND b.status=? ORDER BY b.return_date DESC, b.id DESC`,
		memberID, BorrowingReturned)
}

// Stats returns the librarian dashboard counters.
func (l *Library) Stats(now time.Time) (*CirculationStats, error) {
	var s CirculationStats
	err := l.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(quantity),0) FROM books`).Scan(&s.Books, &s.Copies)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&s.Members); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	err = l.db.QueryRow(`SELECT COUNT(*) FROM borrowings WHERE status=?`, BorrowingBorrowed).Scan(&s.ActiveLoans)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	err = l.db.QueryRow(`SELECT COUNT(*) FROM borrowings WHERE status=? AND due_date < ?`,
		BorrowingBorrowed, dateOnly(now)).Scan(&s.OverdueLoans)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	err = l.db.QueryRow(`SELECT COALESCE(SUM(total_fines - paid_fines),0) FROM members`).Scan(&s.OutstandingFines)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &s, nil
}
