package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
)

// JobsRepository provides persistence helpers for jobs.
type JobsRepository struct {
	pool *pgxpool.Pool
}

const jobColumns = `
    id,
    client_id,
    freelancer_id,
    title,
    description,
    budget,
    currency,
    status,
    created_at,
    updated_at
`

// JobCreateParams bundles the fields required to post a job.
type JobCreateParams struct {
	ClientID    string
	Title       string
	Description string
	Budget      int64
	Currency    string
}

// JobListFilters encapsulates search and pagination options.
type JobListFilters struct {
	Status   *domain.JobStatus
	ClientID *string
	Query    *string
	Limit    int
	Cursor   *Cursor
}

// JobListResult returns the paginated payload.
type JobListResult struct {
	Items      []domain.Job
	NextCursor *string
}

// Create inserts a new open job.
func (r *JobsRepository) Create(ctx context.Context, params JobCreateParams) (domain.Job, error) {
	query := fmt.Sprintf(`
        INSERT INTO jobs (id, client_id, title, description, budget, currency, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING %s
    `, jobColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.ClientID, params.Title, params.Description,
		params.Budget, params.Currency, string(domain.JobOpen))
	job, err := scanJob(row)
	if err != nil {
		return domain.Job{}, translatePgError(err)
	}
	return job, nil
}

// GetByID fetches a job by its identifier.
func (r *JobsRepository) GetByID(ctx context.Context, id string) (domain.Job, error) {
	return getJob(ctx, r.pool, id, false)
}

// Transition moves a job to next if its current status allows it.
func (r *JobsRepository) Transition(ctx context.Context, id string, next domain.JobStatus) (domain.Job, error) {
	var updated domain.Job
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		job, err := getJob(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if _, err := job.Status.Transition(next); err != nil {
			return err
		}
		updated, err = setJobStatus(ctx, tx, id, next, nil)
		return err
	})
	if err != nil {
		return domain.Job{}, err
	}
	return updated, nil
}

// List returns jobs that match the provided filters, newest first.
func (r *JobsRepository) List(ctx context.Context, filters JobListFilters) (JobListResult, error) {
	filters.Limit = clampLimit(filters.Limit)

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = %s", arg(string(*filters.Status))))
	}
	if filters.ClientID != nil && strings.TrimSpace(*filters.ClientID) != "" {
		where = append(where, fmt.Sprintf("client_id = %s", arg(strings.TrimSpace(*filters.ClientID))))
	}
	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := "%" + strings.TrimSpace(*filters.Query) + "%"
		p1 := arg(q)
		p2 := arg(q)
		where = append(where, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", p1, p2))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(jobColumns)
	queryBuilder.WriteString(" FROM jobs")
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return JobListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return JobListResult{}, err
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return JobListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return JobListResult{}, err
		}
		nextCursor = &token
	}

	return JobListResult{Items: items, NextCursor: nextCursor}, nil
}

func getJob(ctx context.Context, q querier, id string, lock bool) (domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)
	if lock {
		query += ` FOR UPDATE`
	}
	job, err := scanJob(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, err
	}
	return job, nil
}

// setJobStatus writes the status and, when freelancerID is non-nil, the
// assigned freelancer.
func setJobStatus(ctx context.Context, q querier, id string, status domain.JobStatus, freelancerID *string) (domain.Job, error) {
	query := fmt.Sprintf(`
        UPDATE jobs
        SET status = $2,
            freelancer_id = COALESCE($3, freelancer_id),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, jobColumns)
	job, err := scanJob(q.QueryRow(ctx, query, id, string(status), freelancerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, err
	}
	return job, nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.ClientID,
		&job.FreelancerID,
		&job.Title,
		&job.Description,
		&job.Budget,
		&job.Currency,
		&status,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	return job, nil
}
