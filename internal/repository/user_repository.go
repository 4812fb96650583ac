package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// UserRepository provides database access for user accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const userColumns = `id, username, email, full_name, date_joined, created_at, updated_at`

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ListDuplicateEmails returns every non-empty email shared by more than one
// user, sorted.
func (r *UserRepository) ListDuplicateEmails(ctx context.Context) ([]string, error) {
	const query = `SELECT email FROM users
        WHERE email IS NOT NULL AND email <> ''
        GROUP BY email HAVING COUNT(*) > 1
        ORDER BY email`
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("list duplicate emails: %w", err)
	}
	return emails, nil
}

// ListByEmail returns the users registered with email, oldest first.
func (r *UserRepository) ListByEmail(ctx context.Context, exec sqlx.ExtContext, email string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 ORDER BY date_joined ASC, id ASC`
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.exec(exec), &users, query, email); err != nil {
		return nil, fmt.Errorf("list users by email: %w", err)
	}
	return users, nil
}

// Delete removes the user row. Remaining access rows cascade with it.
func (r *UserRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return deleteByID(ctx, r.exec(exec), "users", models.UserDeletion, id)
}
