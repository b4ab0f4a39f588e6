package library

import (
	"database/sql"
	"fmt"
	"strings"
)

// Catalog store: book records and copy counts. Book.available is owned here;
// it only moves through reserveCopy/releaseCopy, inside the same transaction
// as the borrowing mutation that justifies the move.

const bookColumns = `id, title, author, year, isbn, category, location, quantity, available, created_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Year, &b.ISBN, &b.Category,
		&b.Location, &b.Quantity, &b.Available, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AddBook inserts a new title. All owned copies start available.
func (l *Library) AddBook(b Book) (int64, error) {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return 0, fmt.Errorf("add book: title and author are required")
	}
	if b.Quantity < 1 {
		b.Quantity = 1
	}
	res, err := l.db.Exec(
		`INSERT INTO books(title,author,year,isbn,category,location,quantity,available)
         VALUES(?,?,?,?,?,?,?,?)`,
		b.Title, b.Author, b.Year, b.ISBN, b.Category, b.Location, b.Quantity, b.Quantity)
	if err != nil {
		return 0, fmt.Errorf("add book: %w", err)
	}
	return res.LastInsertId()
}

// GetBook fetches a single book.
func (l *Library) GetBook(id int64) (*Book, error) {
	b, err := scanBook(l.db.QueryRow(`SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book %d: %w", id, ErrBookNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// ListBooks returns the whole catalog ordered by title.
func (l *Library) ListBooks() ([]*Book, error) {
	return l.queryBooks(`SELECT ` + bookColumns + ` FROM books ORDER BY title, id`)
}

// SearchBooks does a substring match on title, author and ISBN.
func (l *Library) SearchBooks(q string) ([]*Book, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*Book{}, nil
	}
	pattern := "%" + q + "%"
	return l.queryBooks(
		`SELECT `+bookColumns+` FROM books
         WHERE title LIKE ? OR author LIKE ? OR isbn LIKE ?
         ORDER BY title, id`, pattern, pattern, pattern)
}

func (l *Library) queryBooks(query string, args ...any) ([]*Book, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBookCopies changes how many copies the library owns. Available moves
// by the same delta; the new quantity can never drop below the copies
// currently out on loan.
func (l *Library) UpdateBookCopies(id int64, newQuantity int) (*Book, error) {
	if newQuantity < 0 {
		return nil, fmt.Errorf("update copies: quantity must not be negative")
	}
	var updated *Book
	err := l.withTxRetry(func(tx *sql.Tx) error {
		b, err := scanBook(tx.QueryRow(`SELECT `+bookColumns+` FROM books WHERE id=?`, id))
		if err == sql.ErrNoRows {
			return fmt.Errorf("book %d: %w", id, ErrBookNotFound)
		}
		if err != nil {
			return err
		}
		onLoan := b.Quantity - b.Available
		if newQuantity < onLoan {
			return fmt.Errorf("update copies: %d copies of book %d are on loan, cannot reduce to %d", onLoan, id, newQuantity)
		}
		b.Quantity = newQuantity
		b.Available = newQuantity - onLoan
		if _, err := tx.Exec(`UPDATE books SET quantity=?, available=? WHERE id=?`, b.Quantity, b.Available, id); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// reserveCopy decrements available if and only if a copy is free, in one
// conditional statement. The check and the decrement cannot be separated, so
// two concurrent borrows can never both take the last copy.
func reserveCopy(q dbtx, bookID int64) error {
	res, err := q.Exec(`UPDATE books SET available = available - 1 WHERE id=? AND available > 0`, bookID)
	if err != nil {
		return fmt.Errorf("reserve copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve copy: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(`SELECT EXISTS(SELECT 1 FROM books WHERE id=?)`, bookID).Scan(&exists); err != nil {
		return fmt.Errorf("reserve copy: %w", err)
	}
	if !exists {
		return fmt.Errorf("book %d: %w", bookID, ErrBookNotFound)
	}
	return fmt.Errorf("book %d: %w", bookID, ErrBookUnavailable)
}

// releaseCopy increments available, refusing to exceed quantity. A release
// that would push available past quantity means the counts are corrupt and
// is reported as an invariant breach, never clamped silently.
func releaseCopy(q dbtx, bookID int64) error {
	res, err := q.Exec(`UPDATE books SET available = available + 1 WHERE id=? AND available < quantity`, bookID)
	if err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(`SELECT EXISTS(SELECT 1 FROM books WHERE id=?)`, bookID).Scan(&exists); err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	if !exists {
		return fmt.Errorf("book %d: %w", bookID, ErrBookNotFound)
	}
	return &InvariantError{Entity: "book", ID: bookID, Detail: "release would raise available above quantity"}
}

// ReserveCopy and ReleaseCopy run the count mutations standalone. The
// lifecycle engine does not use these; it calls the lower-level forms inside
// its own borrow/return transactions.

func (l *Library) ReserveCopy(bookID int64) error {
	return l.withTxRetry(func(tx *sql.Tx) error { return reserveCopy(tx, bookID) })
}

func (l *Library) ReleaseCopy(bookID int64) error {
	return l.withTxRetry(func(tx *sql.Tx) error { return releaseCopy(tx, bookID) })
}
