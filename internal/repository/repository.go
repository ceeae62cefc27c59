package repository

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/Clark-Hu/freelance-hub/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint would be violated.
	ErrConflict = errors.New("repository: conflict")
	// ErrJobNotOpen is returned when an action requires an open job.
	ErrJobNotOpen = errors.New("repository: job not open")
	// ErrJobClosed is returned when a job is already completed or cancelled.
	ErrJobClosed = errors.New("repository: job closed")
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Users        *UsersRepository
	Ratings      *RatingsRepository
	Jobs         *JobsRepository
	Applications *ApplicationsRepository
	Milestones   *MilestonesRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Users:        &UsersRepository{pool: pool},
		Ratings:      &RatingsRepository{pool: pool, tracer: otel.Tracer("repository/ratings")},
		Jobs:         &JobsRepository{pool: pool},
		Applications: &ApplicationsRepository{pool: pool},
		Milestones:   &MilestonesRepository{pool: pool},
	}
}

// Cursor allows stable pagination by created_at/id.
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func encodeCursor(c Cursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// translatePgError maps constraint violations onto repository sentinels.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
