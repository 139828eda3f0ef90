package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/amazona/backend/internal/model"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("email already registered")
)

const userColumns = `id, name, email, password_hash, is_admin, reset_token, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.ResetToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + userColumns
	created, err := scanUser(db.Pool.QueryRow(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.IsAdmin))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

func (db *Postgres) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, id))
}

func (db *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, email))
}

// GetUserByResetToken matches the stored reset credential by exact string
// equality.
func (db *Postgres) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, token))
}

func (db *Postgres) ListUsers(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *user)
	}
	return list, rows.Err()
}

// UpdateUser writes name, email, password hash and admin flag. A changed
// password hash drops any pending reset token.
func (db *Postgres) UpdateUser(ctx context.Context, user *model.User) (*model.User, error) {
	query := `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, is_admin = $5,
			reset_token = CASE WHEN password_hash IS DISTINCT FROM $4 THEN NULL ELSE reset_token END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	updated, err := scanUser(db.Pool.QueryRow(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.IsAdmin))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return updated, nil
}

// SetResetToken overwrites any pending reset credential.
func (db *Postgres) SetResetToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET reset_token = $2, updated_at = NOW()
		WHERE id = $1
	`, id, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPassword stores the new hash and clears the reset credential, but only
// while the presented token is still the stored one.
func (db *Postgres) ResetPassword(ctx context.Context, id uuid.UUID, token, passwordHash string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3, reset_token = NULL, updated_at = NOW()
		WHERE id = $1 AND reset_token = $2
	`, id, token, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *Postgres) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
