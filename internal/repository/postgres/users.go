package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrUserMissing is returned when no user row exists for an id.
var ErrUserMissing = errors.New("user not found")

// UserRepo reads from the application-owned users table.
type UserRepo struct{ db *sql.DB }

// NewUserRepo creates a Postgres-backed user reader.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// EmailFor returns the delivery address for a user.
func (r *UserRepo) EmailFor(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx,
		`SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserMissing
	}
	if err != nil {
		return "", fmt.Errorf("lookup user email: %w", err)
	}
	return email, nil
}

// BudgetExists reports whether the referenced budget is still live. The
// budgets table belongs to the surrounding application; a missing table in
// a standalone deployment reads as "exists" so deliveries are never
// cancelled spuriously.
func (r *UserRepo) BudgetExists(ctx context.Context, budgetID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM budgets WHERE id = $1)`, budgetID).Scan(&exists)
	if err != nil {
		if isUndefinedTable(err) {
			return true, nil
		}
		return false, fmt.Errorf("check budget: %w", err)
	}
	return exists, nil
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
