package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/database"
)

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {
	// Upsert creates the user or replaces the password of an existing one.
	Upsert(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, email string) error
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
}

// sqlUserRepository implements UserRepository on the users table.
type sqlUserRepository struct {
	db      *sql.DB
	dialect string
}

// NewSQLUserRepository creates a user repository over db. dialect is
// database.DialectMySQL or database.DialectSQLite.
func NewSQLUserRepository(db *sql.DB, dialect string) UserRepository {
	return &sqlUserRepository{db: db, dialect: dialect}
}

func (r *sqlUserRepository) Upsert(ctx context.Context, user *User) error {
	query := `INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET password_hash = excluded.password_hash`
	if r.dialect == database.DialectMySQL {
		query = `INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash)`
	}

	_, err := r.db.ExecContext(ctx, query, user.Email, user.PasswordHash, user.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

func (r *sqlUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT email, password_hash, created_at, last_login_at FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return u, nil
}

func (r *sqlUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, password_hash, created_at, last_login_at FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *sqlUserRepository) Delete(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

func (r *sqlUserRepository) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE email = ?`, at.UTC(), email)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	if err := s.Scan(&u.Email, &u.PasswordHash, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// --- JSON document store ---

// DocumentSection is the key users are stored under in the JSON document.
const DocumentSection = "users"

// jsonUserRepository implements UserRepository on a section of the shared
// JSON document.
type jsonUserRepository struct {
	doc *database.Document
}

// NewJSONUserRepository creates a user repository over doc.
func NewJSONUserRepository(doc *database.Document) UserRepository {
	return &jsonUserRepository{doc: doc}
}

func (r *jsonUserRepository) Upsert(_ context.Context, user *User) error {
	var users []User
	return r.doc.Update(DocumentSection, &users, func() error {
		for i := range users {
			if users[i].Email == user.Email {
				users[i].PasswordHash = user.PasswordHash
				return nil
			}
		}
		users = append(users, *user)
		return nil
	})
}

func (r *jsonUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	var users []User
	if err := r.doc.View(DocumentSection, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

func (r *jsonUserRepository) List(_ context.Context) ([]User, error) {
	var users []User
	if err := r.doc.View(DocumentSection, &users); err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (r *jsonUserRepository) Delete(_ context.Context, email string) error {
	var users []User
	return r.doc.Update(DocumentSection, &users, func() error {
		for i := range users {
			if users[i].Email == email {
				users = append(users[:i], users[i+1:]...)
				return nil
			}
		}
		return apperror.NewNotFound("user not found")
	})
}

func (r *jsonUserRepository) UpdateLastLogin(_ context.Context, email string, at time.Time) error {
	var users []User
	return r.doc.Update(DocumentSection, &users, func() error {
		for i := range users {
			if users[i].Email == email {
				t := at.UTC()
				users[i].LastLoginAt = &t
				return nil
			}
		}
		return apperror.NewNotFound("user not found")
	})
}
