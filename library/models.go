package library

import "time"

// MemberStatus gates whether a member may start new borrowings. Only an
// administrative caller changes it; the engine itself never mutates status.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberBlocked   MemberStatus = "blocked"
	MemberSuspended MemberStatus = "suspended"
)

// Valid reports whether s is one of the known member statuses.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberBlocked, MemberSuspended:
		return true
	}
	return false
}

// BorrowingStatus is the persisted lifecycle state of a borrowing.
// "overdue" is never stored; it is derived from status and due date.
type BorrowingStatus string

const (
	BorrowingBorrowed BorrowingStatus = "borrowed"
	BorrowingReturned BorrowingStatus = "returned"
)

// FineType classifies one row of the fine ledger.
type FineType string

const (
	FineCharged FineType = "charged"
	FinePaid    FineType = "paid"
	FineWaived  FineType = "waived"
)

// Role is the access level of a user account.
type Role string

const (
	RoleLibrarian Role = "librarian"
	RoleStudent   Role = "student"
)

// User is a login account. Members link to a user; borrowings and ledger
// entries record the user who performed them.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Don't serialize password hash
	Role         Role      `json:"role"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Book represents one title and its copy counts. Copies are tracked only as
// counts; borrowing records carry the who/when detail.
type Book struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Year      int       `json:"year"`
	ISBN      string    `json:"isbn"`
	Category  string    `json:"category"`
	Location  string    `json:"location"`
	Quantity  int       `json:"quantity"`
	Available int       `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a registered borrower. TotalFines and PaidFines are cached
// projections of the fine ledger, in cents, updated in the same transaction
// as every ledger append.
type Member struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	StudentID   string       `json:"student_id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	Department  string       `json:"department"`
	YearOfStudy int          `json:"year_of_study"`
	Status      MemberStatus `json:"status"`
	TotalFines  int64        `json:"total_fines"`
	PaidFines   int64        `json:"paid_fines"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Borrowing is one loan of one copy. It is never deleted; a return flips it
// to BorrowingReturned and it stays around as history.
type Borrowing struct {
	ID         int64           `json:"id"`
	BookID     int64           `json:"book_id"`
	MemberID   int64           `json:"member_id"`
	BorrowedBy int64           `json:"borrowed_by"` // user who recorded the loan
	BorrowDate time.Time       `json:"borrow_date"`
	DueDate    time.Time       `json:"due_date"`
	ReturnDate *time.Time      `json:"return_date,omitempty"`
	Status     BorrowingStatus `json:"status"`
	FineAmount int64           `json:"fine_amount"` // cents
	FinePaid   bool            `json:"fine_paid"`
	Notes      string          `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Overdue reports whether the borrowing is past due and not yet returned,
// comparing on calendar dates.
func (b *Borrowing) Overdue(now time.Time) bool {
	return b.Status == BorrowingBorrowed && dateOnly(now).After(b.DueDate)
}

// FineTransaction is one immutable row of the fine ledger. Amounts are in
// cents and always positive; the type says which way the balance moves.
type FineTransaction struct {
	ID            int64     `json:"id"`
	BorrowingID   int64     `json:"borrowing_id"`
	MemberID      int64     `json:"member_id"`
	Amount        int64     `json:"amount"`
	Type          FineType  `json:"type"`
	ProcessedBy   int64     `json:"processed_by"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// BorrowingView is a borrowing joined with book and member details for
// display by callers. AccruedFine is what a still-open overdue loan would
// cost if it were returned now.
type BorrowingView struct {
	Borrowing
	BookTitle   string `json:"book_title"`
	BookAuthor  string `json:"book_author"`
	MemberName  string `json:"member_name"`
	DaysOverdue int    `json:"days_overdue"`
	AccruedFine int64  `json:"accrued_fine"`
}

// FineSummary aggregates a member's ledger, in cents.
type FineSummary struct {
	MemberID    int64 `json:"member_id"`
	Charged     int64 `json:"charged"`
	Paid        int64 `json:"paid"`
	Waived      int64 `json:"waived"`
	Outstanding int64 `json:"outstanding"`
}

// CirculationStats are the librarian dashboard counters.
type CirculationStats struct {
	Books            int   `json:"books"`
	Copies           int   `json:"copies"`
	Members          int   `json:"members"`
	ActiveLoans      int   `json:"active_loans"`
	OverdueLoans     int   `json:"overdue_loans"`
	OutstandingFines int64 `json:"outstanding_fines"`
}

// dateOnly truncates t to a UTC calendar date. Loan math works in whole days.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
