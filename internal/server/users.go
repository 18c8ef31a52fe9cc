package server

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
)

// UserStore persists account credentials.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (id string, passwordHash string, err error)
}

// errDuplicateEmail distinguishes the unique-constraint case for signup.
type duplicateEmailError struct{}

func (duplicateEmailError) Error() string { return "email already exists" }

var errDuplicateEmail = duplicateEmailError{}

// PostgresUsers stores users in the users table.
type PostgresUsers struct {
	DB *sql.DB
}

func (s *PostgresUsers) Create(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *PostgresUsers) GetByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return id, hash, err
}

// MemoryUsers backs handler tests and dev setups without Postgres.
type MemoryUsers struct {
	mu    sync.Mutex
	users map[string][2]string // email -> id, hash
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string][2]string)}
}

func (s *MemoryUsers) Create(_ context.Context, email, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return errDuplicateEmail
	}
	s.users[email] = [2]string{uuid.NewString(), hash}
	return nil
}

func (s *MemoryUsers) GetByEmail(_ context.Context, email string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return "", "", sql.ErrNoRows
	}
	return u[0], u[1], nil
}
