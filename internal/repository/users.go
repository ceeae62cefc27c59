package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
)

// UsersRepository persists marketplace participants.
type UsersRepository struct {
	pool *pgxpool.Pool
}

const userColumns = `id, name, email, role, paypal_email, rating_average, rating_count, created_at, updated_at`

// UserCreateParams bundles the fields required to create a user.
type UserCreateParams struct {
	Name        string
	Email       string
	Role        domain.Role
	PaypalEmail *string
}

// Create inserts a user. Duplicate emails return ErrConflict.
func (r *UsersRepository) Create(ctx context.Context, params UserCreateParams) (domain.User, error) {
	const query = `
        INSERT INTO users (id, name, email, role, paypal_email)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.Name, params.Email, string(params.Role), params.PaypalEmail)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, translatePgError(err)
	}
	return user, nil
}

// GetByID fetches a user by identifier.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&role,
		&user.PaypalEmail,
		&user.RatingAverage,
		&user.RatingCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	user.Role = domain.Role(role)
	return user, nil
}
