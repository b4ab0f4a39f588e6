package library

import (
	"database/sql"
	"fmt"
)

// Fine accrual and ledger. Every fine movement is one append-only
// fine_transactions row; the member's cached total_fines/paid_fines move in
// the same transaction. total_fines mirrors charged minus waived, paid_fines
// mirrors paid. Nothing ever edits a ledger row after the fact.

const fineTxColumns = `id, borrowing_id, member_id, amount, transaction_type, processed_by, payment_method, notes, created_at`

func scanFineTx(row interface{ Scan(...any) error }) (*FineTransaction, error) {
	var ft FineTransaction
	err := row.Scan(&ft.ID, &ft.BorrowingID, &ft.MemberID, &ft.Amount, &ft.Type,
		&ft.ProcessedBy, &ft.PaymentMethod, &ft.Notes, &ft.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

// appendFineTx writes one ledger row and moves the member's cached
// aggregates, then re-reads them to verify paid never exceeds total.
func appendFineTx(q dbtx, ft *FineTransaction) error {
	if ft.Amount <= 0 {
		return fmt.Errorf("ledger append: amount must be positive, got %d", ft.Amount)
	}

	res, err := q.Exec(
		`INSERT INTO fine_transactions(borrowing_id,member_id,amount,transaction_type,processed_by,payment_method,notes)
         VALUES(?,?,?,?,?,?,?)`,
		ft.BorrowingID, ft.MemberID, ft.Amount, ft.Type, ft.ProcessedBy, ft.PaymentMethod, ft.Notes)
	if err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	if ft.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	var update string
	switch ft.Type {
	case FineCharged:
		update = `UPDATE members SET total_fines = total_fines + ? WHERE id=?`
	case FineWaived:
		update = `UPDATE members SET total_fines = total_fines - ? WHERE id=?`
	case FinePaid:
		update = `UPDATE members SET paid_fines = paid_fines + ? WHERE id=?`
	default:
		return fmt.Errorf("ledger append: unknown transaction type %q", ft.Type)
	}
	if _, err := q.Exec(update, ft.Amount, ft.MemberID); err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}

	var total, paid int64
	err = q.QueryRow(`SELECT total_fines, paid_fines FROM members WHERE id=?`, ft.MemberID).Scan(&total, &paid)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member %d: %w", ft.MemberID, ErrMemberNotFound)
	}
	if err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	if total < 0 || paid < 0 || paid > total {
		return &InvariantError{Entity: "member", ID: ft.MemberID,
			Detail: fmt.Sprintf("fine aggregates out of range: total=%d paid=%d", total, paid)}
	}
	return nil
}

// borrowingOutstanding derives charged - paid - waived for one borrowing
// straight from the ledger.
func borrowingOutstanding(q dbtx, borrowingID int64) (int64, error) {
	var out int64
	err := q.QueryRow(
		`SELECT COALESCE(SUM(CASE transaction_type
            WHEN 'charged' THEN amount
            WHEN 'paid' THEN -amount
            WHEN 'waived' THEN -amount
         END), 0)
         FROM fine_transactions WHERE borrowing_id=?`, borrowingID).Scan(&out)
	if err != nil {
		return 0, fmt.Errorf("outstanding: %w", err)
	}
	return out, nil
}

// loadMemberBorrowing fetches the borrowing and checks it belongs to member.
func loadMemberBorrowing(q dbtx, borrowingID, memberID int64) (*Borrowing, error) {
	b, err := scanBorrowing(q.QueryRow(`SELECT `+borrowingColumns+` FROM borrowings WHERE id=?`, borrowingID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("borrowing %d: %w", borrowingID, ErrBorrowingNotFound)
	}
	if err != nil {
		return nil, err
	}
	if b.MemberID != memberID {
		return nil, fmt.Errorf("borrowing %d does not belong to member %d: %w", borrowingID, memberID, ErrBorrowingNotFound)
	}
	return b, nil
}

// Charge records a manual fine against a borrowing, e.g. for a damaged copy.
// Overdue charges are created by Return itself; this is the librarian path.
func (l *Library) Charge(memberID, borrowingID, amount, actorID int64, notes string) (*FineTransaction, error) {
	var ft *FineTransaction
	err := l.withTxRetry(func(tx *sql.Tx) error {
		if _, err := loadMemberBorrowing(tx, borrowingID, memberID); err != nil {
			return err
		}
		ft = &FineTransaction{
			BorrowingID: borrowingID,
			MemberID:    memberID,
			Amount:      amount,
			Type:        FineCharged,
			ProcessedBy: actorID,
			Notes:       notes,
		}
		if err := appendFineTx(tx, ft); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE borrowings SET fine_amount = fine_amount + ?, fine_paid = 0 WHERE id=?`,
			amount, borrowingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l.getFineTx(ft.ID)
}

// Pay settles part or all of a borrowing's outstanding fine. Paying more
// than is outstanding fails with ErrOverPayment and leaves no ledger row.
func (l *Library) Pay(memberID, borrowingID, amount int64, method string, actorID int64) (*FineTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("pay: amount must be positive, got %d", amount)
	}
	var ft *FineTransaction
	err := l.withTxRetry(func(tx *sql.Tx) error {
		if _, err := loadMemberBorrowing(tx, borrowingID, memberID); err != nil {
			return err
		}
		out, err := borrowingOutstanding(tx, borrowingID)
		if err != nil {
			return err
		}
		if amount > out {
			return fmt.Errorf("pay %s against outstanding %s: %w",
				FormatCents(amount), FormatCents(out), ErrOverPayment)
		}
		ft = &FineTransaction{
			BorrowingID:   borrowingID,
			MemberID:      memberID,
			Amount:        amount,
			Type:          FinePaid,
			ProcessedBy:   actorID,
			PaymentMethod: method,
		}
		if err := appendFineTx(tx, ft); err != nil {
			return err
		}
		if amount == out {
			if _, err := tx.Exec(`UPDATE borrowings SET fine_paid = 1 WHERE id=?`, borrowingID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.getFineTx(ft.ID)
}

// Waive forgives part or all of a borrowing's outstanding fine. Like Pay it
// cannot push the outstanding balance below zero.
func (l *Library) Waive(memberID, borrowingID, amount, actorID int64, notes string) (*FineTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("waive: amount must be positive, got %d", amount)
	}
	var ft *FineTransaction
	err := l.withTxRetry(func(tx *sql.Tx) error {
		if _, err := loadMemberBorrowing(tx, borrowingID, memberID); err != nil {
			return err
		}
		out, err := borrowingOutstanding(tx, borrowingID)
		if err != nil {
			return err
		}
		if amount > out {
			return fmt.Errorf("waive %s against outstanding %s: %w",
				FormatCents(amount), FormatCents(out), ErrOverPayment)
		}
		ft = &FineTransaction{
			BorrowingID: borrowingID,
			MemberID:    memberID,
			Amount:      amount,
			Type:        FineWaived,
			ProcessedBy: actorID,
			Notes:       notes,
		}
		if err := appendFineTx(tx, ft); err != nil {
			return err
		}
		if amount == out {
			if _, err := tx.Exec(`UPDATE borrowings SET fine_paid = 1 WHERE id=?`, borrowingID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.getFineTx(ft.ID)
}

func (l *Library) getFineTx(id int64) (*FineTransaction, error) {
	ft, err := scanFineTx(l.db.QueryRow(`SELECT `+fineTxColumns+` FROM fine_transactions WHERE id=?`, id))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return ft, nil
}

// Outstanding returns the unsettled balance for one borrowing.
func (l *Library) Outstanding(borrowingID int64) (int64, error) {
	if _, err := l.GetBorrowing(borrowingID); err != nil {
		return 0, err
	}
	return borrowingOutstanding(l.db, borrowingID)
}

// MemberFineSummary aggregates a member's whole ledger.
func (l *Library) MemberFineSummary(memberID int64) (*FineSummary, error) {
	if _, err := l.GetMember(memberID); err != nil {
		return nil, err
	}
	s := FineSummary{MemberID: memberID}
	err := l.db.QueryRow(
		`SELECT
            COALESCE(SUM(CASE WHEN transaction_type='charged' THEN amount END), 0),
            COALESCE(SUM(CASE WHEN transaction_type='paid' THEN amount END), 0),
            COALESCE(SUM(CASE WHEN transaction_type='waived' THEN amount END), 0)
         FROM fine_transactions WHERE member_id=?`, memberID).
		Scan(&s.Charged, &s.Paid, &s.Waived)
	if err != nil {
		return nil, fmt.Errorf("fine summary: %w", err)
	}
	s.Outstanding = s.Charged - s.Paid - s.Waived
	return &s, nil
}

// ListFineTransactions returns a member's ledger rows, oldest first.
func (l *Library) ListFineTransactions(memberID int64) ([]*FineTransaction, error) {
	rows, err := l.db.Query(
		`SELECT `+fineTxColumns+` FROM fine_transactions WHERE member_id=? ORDER BY id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	txs := []*FineTransaction{}
	for rows.Next() {
		ft, err := scanFineTx(rows)
		if err != nil {
			return nil, fmt.Errorf("list ledger: %w", err)
		}
		txs = append(txs, ft)
	}
	return txs, rows.Err()
}

// ReconcileMemberFines re-derives the member's aggregates from the ledger
// and compares them to the cached columns. Divergence is an invariant breach
// and is reported, never silently corrected.
func (l *Library) ReconcileMemberFines(memberID int64) error {
	m, err := l.GetMember(memberID)
	if err != nil {
		return err
	}
	s, err := l.MemberFineSummary(memberID)
	if err != nil {
		return err
	}
	wantTotal := s.Charged - s.Waived
	if m.TotalFines != wantTotal || m.PaidFines != s.Paid {
		return &InvariantError{Entity: "member", ID: memberID,
			Detail: fmt.Sprintf("cached fines diverge from ledger: cached total=%d paid=%d, ledger total=%d paid=%d",
				m.TotalFines, m.PaidFines, wantTotal, s.Paid)}
	}
	if m.PaidFines > m.TotalFines {
		return &InvariantError{Entity: "member", ID: memberID,
			Detail: fmt.Sprintf("paid fines %d exceed total %d", m.PaidFines, m.TotalFines)}
	}
	return nil
}
