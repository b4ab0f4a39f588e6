package library

import (
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Member store: login accounts and member records. Status changes happen only
// here, through an explicit administrative call; borrowing and fines never
// flip a member's status on their own.

const memberColumns = `id, user_id, student_id, name, email, phone, department, year_of_study, status, total_fines, paid_fines, created_at`

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.UserID, &m.StudentID, &m.Name, &m.Email, &m.Phone,
		&m.Department, &m.YearOfStudy, &m.Status, &m.TotalFines, &m.PaidFines, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateUser adds a login account with a bcrypt password hash and returns its id.
func (l *Library) CreateUser(username, password string, role Role, fullName, email string) (int64, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return 0, fmt.Errorf("create user: username and password are required")
	}
	if role != RoleLibrarian && role != RoleStudent {
		return 0, fmt.Errorf("create user: unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	res, err := l.db.Exec(
		`INSERT INTO users(username,password_hash,role,full_name,email) VALUES(?,?,?,?,?)`,
		username, string(hash), role, fullName, email)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

// AuthenticateUser verifies a username/password pair and returns the account.
func (l *Library) AuthenticateUser(username, password string) (*User, error) {
	var u User
	err := l.db.QueryRow(
		`SELECT id, username, password_hash, role, full_name, email, active, created_at
         FROM users WHERE username=?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.FullName, &u.Email, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// RegisterMemberParams carries everything needed to enroll a new borrower.
type RegisterMemberParams struct {
	Username    string
	Password    string
	StudentID   string
	Name        string
	Email       string
	Phone       string
	Department  string
	YearOfStudy int
}

// RegisterMember creates the login account and the member record in one
// transaction. New members start active with a zero fine balance.
func (l *Library) RegisterMember(p RegisterMemberParams) (*Member, error) {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.StudentID) == "" {
		return nil, fmt.Errorf("register member: name and student id are required")
	}
	if strings.TrimSpace(p.Username) == "" || p.Password == "" {
		return nil, fmt.Errorf("register member: username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("register member: %w", err)
	}

	var member *Member
	err = l.withTxRetry(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO users(username,password_hash,role,full_name,email) VALUES(?,?,?,?,?)`,
			p.Username, string(hash), RoleStudent, p.Name, p.Email)
		if err != nil {
			return fmt.Errorf("register member: %w", err)
		}
		userID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		res, err = tx.Exec(
			`INSERT INTO members(user_id,student_id,name,email,phone,department,year_of_study,status)
             VALUES(?,?,?,?,?,?,?,?)`,
			userID, p.StudentID, p.Name, p.Email, p.Phone, p.Department, p.YearOfStudy, MemberActive)
		if err != nil {
			return fmt.Errorf("register member: %w", err)
		}
		memberID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		member, err = scanMember(tx.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id=?`, memberID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// GetMember fetches a single member.
func (l *Library) GetMember(id int64) (*Member, error) {
	m, err := scanMember(l.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// GetMemberByUser resolves the member record linked to a login account.
func (l *Library) GetMemberByUser(userID int64) (*Member, error) {
	m, err := scanMember(l.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE user_id=?`, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrMemberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member by user: %w", err)
	}
	return m, nil
}

// ListMembers returns all members ordered by id.
func (l *Library) ListMembers() ([]*Member, error) {
	rows, err := l.db.Query(`SELECT ` + memberColumns + ` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetMemberStatus is the administrative path for blocking, suspending or
// reactivating a member.
func (l *Library) SetMemberStatus(memberID int64, status MemberStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status: unknown status %q", status)
	}
	res, err := l.db.Exec(`UPDATE members SET status=? WHERE id=?`, status, memberID)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("member %d: %w", memberID, ErrMemberNotFound)
	}
	return nil
}
