package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
)

// ApplicationsRepository persists freelancer bids.
type ApplicationsRepository struct {
	pool *pgxpool.Pool
}

const applicationColumns = `id, job_id, freelancer_id, cover_letter, bid_amount, status, created_at, updated_at`

// ApplicationCreateParams bundles the fields required to apply for a job.
type ApplicationCreateParams struct {
	JobID        string
	FreelancerID string
	CoverLetter  string
	BidAmount    int64
}

// Create records an application against an open job. A freelancer may apply
// to a job only once.
func (r *ApplicationsRepository) Create(ctx context.Context, params ApplicationCreateParams) (domain.Application, error) {
	var app domain.Application
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR SHARE`, params.JobID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if domain.JobStatus(status) != domain.JobOpen {
			return ErrJobNotOpen
		}

		query := fmt.Sprintf(`
            INSERT INTO applications (id, job_id, freelancer_id, cover_letter, bid_amount, status)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING %s
        `, applicationColumns)
		app, err = scanApplication(tx.QueryRow(ctx, query, uuid.NewString(), params.JobID, params.FreelancerID,
			params.CoverLetter, params.BidAmount, string(domain.ApplicationPending)))
		return translatePgError(err)
	})
	if err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// GetByID fetches an application by identifier.
func (r *ApplicationsRepository) GetByID(ctx context.Context, id string) (domain.Application, error) {
	return getApplication(ctx, r.pool, id, false)
}

// ListByJob returns every application for a job, oldest first.
func (r *ApplicationsRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Application, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM applications WHERE job_id = $1 ORDER BY created_at, id`, applicationColumns), jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, app)
	}
	return items, rows.Err()
}

// Transition moves an application to rejected or withdrawn. Acceptance goes
// through Accept because it also changes the job.
func (r *ApplicationsRepository) Transition(ctx context.Context, id string, next domain.ApplicationStatus) (domain.Application, error) {
	if next == domain.ApplicationAccepted {
		return r.Accept(ctx, id)
	}

	var updated domain.Application
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		app, err := getApplication(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if _, err := app.Status.Transition(next); err != nil {
			return err
		}
		updated, err = setApplicationStatus(ctx, tx, id, next)
		return err
	})
	if err != nil {
		return domain.Application{}, err
	}
	return updated, nil
}

// Accept accepts an application, assigns its freelancer to the job, moves the
// job to in_progress and rejects every other pending application.
//
// The job row is locked before the application row so that concurrent accepts
// of sibling applications queue on the job instead of deadlocking.
func (r *ApplicationsRepository) Accept(ctx context.Context, id string) (domain.Application, error) {
	var accepted domain.Application
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		peek, err := getApplication(ctx, tx, id, false)
		if err != nil {
			return err
		}
		job, err := getJob(ctx, tx, peek.JobID, true)
		if err != nil {
			return err
		}

		app, err := getApplication(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if _, err := app.Status.Transition(domain.ApplicationAccepted); err != nil {
			return err
		}
		if _, err := job.Status.Transition(domain.JobInProgress); err != nil {
			return ErrJobNotOpen
		}

		accepted, err = setApplicationStatus(ctx, tx, id, domain.ApplicationAccepted)
		if err != nil {
			return err
		}
		if _, err := setJobStatus(ctx, tx, job.ID, domain.JobInProgress, &app.FreelancerID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
            UPDATE applications
            SET status = $3, updated_at = now()
            WHERE job_id = $1 AND id <> $2 AND status = $4
        `, job.ID, id, string(domain.ApplicationRejected), string(domain.ApplicationPending))
		return err
	})
	if err != nil {
		return domain.Application{}, err
	}
	return accepted, nil
}

func getApplication(ctx context.Context, q querier, id string, lock bool) (domain.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	if lock {
		query += ` FOR UPDATE`
	}
	app, err := scanApplication(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Application{}, ErrNotFound
		}
		return domain.Application{}, err
	}
	return app, nil
}

func setApplicationStatus(ctx context.Context, q querier, id string, status domain.ApplicationStatus) (domain.Application, error) {
	query := fmt.Sprintf(`
        UPDATE applications SET status = $2, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, applicationColumns)
	return scanApplication(q.QueryRow(ctx, query, id, string(status)))
}

func scanApplication(row pgx.Row) (domain.Application, error) {
	var (
		app    domain.Application
		status string
	)
	err := row.Scan(
		&app.ID,
		&app.JobID,
		&app.FreelancerID,
		&app.CoverLetter,
		&app.BidAmount,
		&status,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return domain.Application{}, err
	}
	app.Status = domain.ApplicationStatus(status)
	return app, nil
}
