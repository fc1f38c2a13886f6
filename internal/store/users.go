package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/dbx"
)

const userColumns = `id, email, password_hash, is_admin, is_approved, factory, department, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u       User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsApproved, &u.Factory, &u.Department, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = fromUnix(created)
	return &u, nil
}

// UserByID returns the user with the given id or common.ErrNotFound.
func (s *SQLStore) UserByID(ctx context.Context, id int64) (*User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return u, nil
}

// UserByEmail returns the user with the given email or common.ErrNotFound.
func (s *SQLStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return userByEmail(ctx, s.db, s.rebind, email)
}

func userByEmail(ctx context.Context, db dbx.DBTX, rebind func(string) string, email string) (*User, error) {
	query := rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	u, err := scanUser(db.QueryRowContext(ctx, query, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user and returns it with its id populated.
func (s *SQLStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	return createUser(ctx, s.db, s.rebind, u)
}

func createUser(ctx context.Context, db dbx.DBTX, rebind func(string) string, u *User) (*User, error) {
	created := *u
	created.Email = normalizeEmail(u.Email)
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}

	query := rebind(`INSERT INTO users (email, password_hash, is_admin, is_approved, factory, department, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := db.QueryRowContext(ctx, query,
		created.Email, created.PasswordHash, created.IsAdmin, created.IsApproved,
		created.Factory, created.Department, toUnix(created.CreatedAt),
	).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("error inserting user: %w", err)
	}
	return &created, nil
}

// ApproveUser marks the account as approved so it can log in.
func (s *SQLStore) ApproveUser(ctx context.Context, email string) error {
	query := s.rebind(`UPDATE users SET is_approved = ? WHERE email = ?`)
	res, err := s.db.ExecContext(ctx, query, true, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("error approving user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", email, common.ErrNotFound)
	}
	return nil
}

// EnsureAdmin creates an approved administrator unless a user with the email
// already exists. It reports whether a user was created.
func (s *SQLStore) EnsureAdmin(ctx context.Context, email, passwordHash string) (bool, error) {
	created := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := userByEmail(ctx, tx, s.rebind, email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if _, err := createUser(ctx, tx, s.rebind, &User{
			Email:        email,
			PasswordHash: passwordHash,
			IsAdmin:      true,
			IsApproved:   true,
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ensure admin: %w", err)
	}
	return created, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
