package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
	"github.com/Clark-Hu/freelance-hub/internal/rating"
)

// RatingsRepository stores individual ratings and the running aggregate kept
// on each user row.
type RatingsRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// RatingCreateParams captures a rating submission.
type RatingCreateParams struct {
	SubjectID string
	RaterID   string
	JobID     *string
	Value     float64
	Comment   *string
}

// UpdateFunc computes the new aggregate from a history snapshot.
type UpdateFunc func(h rating.History, value float64) rating.Result

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// History returns the subject's current rating snapshot.
func (r *RatingsRepository) History(ctx context.Context, subjectID string) (rating.History, error) {
	return loadHistory(ctx, r.pool, subjectID, false)
}

// Apply records a rating and updates the subject's running average in one
// transaction. The subject row is locked for the duration, so concurrent
// submissions for the same subject are applied one after another.
func (r *RatingsRepository) Apply(ctx context.Context, params RatingCreateParams, fn UpdateFunc) (domain.Rating, domain.RatingAggregate, error) {
	ctx, span := r.tracer.Start(ctx, "RatingsRepository.Apply",
		trace.WithAttributes(
			attribute.String("rating.subject_id", params.SubjectID),
			attribute.Float64("rating.value", params.Value),
		),
	)
	defer span.End()

	var (
		stored domain.Rating
		agg    domain.RatingAggregate
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		history, err := loadHistory(ctx, tx, params.SubjectID, true)
		if err != nil {
			return err
		}

		res := fn(history, params.Value)

		stored = domain.Rating{
			ID:        uuid.NewString(),
			SubjectID: params.SubjectID,
			RaterID:   params.RaterID,
			JobID:     params.JobID,
			Value:     params.Value,
			Comment:   params.Comment,
			Outlier:   res.Outlier,
		}
		err = tx.QueryRow(ctx, `
            INSERT INTO ratings (id, subject_id, rater_id, job_id, value, comment, outlier)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            RETURNING created_at
        `, stored.ID, stored.SubjectID, stored.RaterID, stored.JobID, stored.Value, stored.Comment, stored.Outlier).Scan(&stored.CreatedAt)
		if err != nil {
			return translatePgError(err)
		}

		return tx.QueryRow(ctx, `
            UPDATE users
            SET rating_average = $2, rating_count = rating_count + 1, updated_at = now()
            WHERE id = $1
            RETURNING rating_average, rating_count
        `, params.SubjectID, res.Average).Scan(&agg.Average, &agg.Count)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Rating{}, domain.RatingAggregate{}, err
	}

	span.SetAttributes(
		attribute.Bool("rating.outlier", stored.Outlier),
		attribute.Float64("rating.average", agg.Average),
		attribute.Int64("rating.count", agg.Count),
	)
	return stored, agg, nil
}

// Aggregate returns the stored running average and count for a subject.
func (r *RatingsRepository) Aggregate(ctx context.Context, subjectID string) (domain.RatingAggregate, error) {
	var agg domain.RatingAggregate
	err := r.pool.QueryRow(ctx, `SELECT rating_average, rating_count FROM users WHERE id = $1`, subjectID).
		Scan(&agg.Average, &agg.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{}, ErrNotFound
		}
		return domain.RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

// ListBySubject returns the most recent ratings for a subject, newest first.
func (r *RatingsRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.Rating, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, subject_id, rater_id, job_id, value, comment, outlier, created_at
        FROM ratings
        WHERE subject_id = $1
        ORDER BY seq DESC
        LIMIT $2
    `, subjectID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Rating, 0)
	for rows.Next() {
		var rt domain.Rating
		if err := rows.Scan(&rt.ID, &rt.SubjectID, &rt.RaterID, &rt.JobID, &rt.Value, &rt.Comment, &rt.Outlier, &rt.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, rt)
	}
	return items, rows.Err()
}

func loadHistory(ctx context.Context, q querier, subjectID string, lock bool) (rating.History, error) {
	query := `SELECT rating_average, rating_count FROM users WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		avg   float64
		count int64
	)
	if err := q.QueryRow(ctx, query, subjectID).Scan(&avg, &count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rating.History{}, ErrNotFound
		}
		return rating.History{}, fmt.Errorf("load rating stats: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT value FROM ratings WHERE subject_id = $1 ORDER BY seq`, subjectID)
	if err != nil {
		return rating.History{}, fmt.Errorf("load ratings: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[float64])
	if err != nil {
		return rating.History{}, fmt.Errorf("load ratings: %w", err)
	}

	n := int(count)
	return rating.History{Ratings: values, Average: &avg, Count: &n}, nil
}
