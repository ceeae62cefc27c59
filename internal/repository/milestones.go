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

// MilestonesRepository persists payable job milestones.
type MilestonesRepository struct {
	pool *pgxpool.Pool
}

const milestoneColumns = `id, job_id, title, amount, currency, status, payout_batch_id, created_at, updated_at`

// MilestoneCreateParams bundles the fields required to add a milestone.
type MilestoneCreateParams struct {
	JobID    string
	Title    string
	Amount   int64
	Currency string
}

// Create adds a pending milestone to a job that is still open or in progress.
func (r *MilestonesRepository) Create(ctx context.Context, params MilestoneCreateParams) (domain.Milestone, error) {
	var ms domain.Milestone
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		job, err := getJob(ctx, tx, params.JobID, false)
		if err != nil {
			return err
		}
		if job.Status == domain.JobCompleted || job.Status == domain.JobCancelled {
			return ErrJobClosed
		}

		query := fmt.Sprintf(`
            INSERT INTO milestones (id, job_id, title, amount, currency, status)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING %s
        `, milestoneColumns)
		ms, err = scanMilestone(tx.QueryRow(ctx, query, uuid.NewString(), params.JobID, params.Title,
			params.Amount, params.Currency, string(domain.MilestonePending)))
		return err
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	return ms, nil
}

// GetByID fetches a milestone by identifier.
func (r *MilestonesRepository) GetByID(ctx context.Context, id string) (domain.Milestone, error) {
	return getMilestone(ctx, r.pool, id, false)
}

// ListByJob returns a job's milestones in creation order.
func (r *MilestonesRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Milestone, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM milestones WHERE job_id = $1 ORDER BY created_at, id`, milestoneColumns), jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Milestone, 0)
	for rows.Next() {
		ms, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ms)
	}
	return items, rows.Err()
}

// Transition moves a milestone to next if its current status allows it.
// Payout states are owned by ClaimPayout, ReleasePayout and MarkPaid.
func (r *MilestonesRepository) Transition(ctx context.Context, id string, next domain.MilestoneStatus) (domain.Milestone, error) {
	switch next {
	case domain.MilestonePaid, domain.MilestonePayoutPending:
		return domain.Milestone{}, fmt.Errorf("%w: %s is set by the payout flow", domain.ErrInvalidTransition, next)
	}
	return r.transition(ctx, id, next, nil, "")
}

// ClaimPayout moves an approved milestone to payout_pending. At most one
// caller can hold the claim, so only that caller may contact the payment
// provider.
func (r *MilestonesRepository) ClaimPayout(ctx context.Context, id string) (domain.Milestone, error) {
	return r.transition(ctx, id, domain.MilestonePayoutPending, nil, domain.MilestoneApproved)
}

// ReleasePayout returns a claimed milestone to approved after a failed payout.
func (r *MilestonesRepository) ReleasePayout(ctx context.Context, id string) (domain.Milestone, error) {
	return r.transition(ctx, id, domain.MilestoneApproved, nil, domain.MilestonePayoutPending)
}

// MarkPaid moves a claimed milestone to paid and records the payout batch.
func (r *MilestonesRepository) MarkPaid(ctx context.Context, id, batchID string) (domain.Milestone, error) {
	return r.transition(ctx, id, domain.MilestonePaid, &batchID, domain.MilestonePayoutPending)
}

// transition applies next under a row lock. A non-empty from pins the current
// status; an empty one refuses milestones held by the payout flow.
func (r *MilestonesRepository) transition(ctx context.Context, id string, next domain.MilestoneStatus, batchID *string, from domain.MilestoneStatus) (domain.Milestone, error) {
	var updated domain.Milestone
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ms, err := getMilestone(ctx, tx, id, true)
		if err != nil {
			return err
		}
		switch {
		case from != "" && ms.Status != from:
			return fmt.Errorf("%w: milestone is %s", domain.ErrInvalidTransition, ms.Status)
		case from == "" && ms.Status == domain.MilestonePayoutPending:
			return fmt.Errorf("%w: payout in progress", domain.ErrInvalidTransition)
		}
		if _, err := ms.Status.Transition(next); err != nil {
			return err
		}
		query := fmt.Sprintf(`
            UPDATE milestones
            SET status = $2,
                payout_batch_id = COALESCE($3, payout_batch_id),
                updated_at = now()
            WHERE id = $1
            RETURNING %s
        `, milestoneColumns)
		updated, err = scanMilestone(tx.QueryRow(ctx, query, id, string(next), batchID))
		return err
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	return updated, nil
}

func getMilestone(ctx context.Context, q querier, id string, lock bool) (domain.Milestone, error) {
	query := fmt.Sprintf(`SELECT %s FROM milestones WHERE id = $1`, milestoneColumns)
	if lock {
		query += ` FOR UPDATE`
	}
	ms, err := scanMilestone(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Milestone{}, ErrNotFound
		}
		return domain.Milestone{}, err
	}
	return ms, nil
}

func scanMilestone(row pgx.Row) (domain.Milestone, error) {
	var (
		ms     domain.Milestone
		status string
	)
	err := row.Scan(
		&ms.ID,
		&ms.JobID,
		&ms.Title,
		&ms.Amount,
		&ms.Currency,
		&status,
		&ms.PayoutBatchID,
		&ms.CreatedAt,
		&ms.UpdatedAt,
	)
	if err != nil {
		return domain.Milestone{}, err
	}
	ms.Status = domain.MilestoneStatus(status)
	return ms, nil
}
