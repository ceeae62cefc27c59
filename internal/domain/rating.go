package domain

import "time"

// Rating is a single score one user gave another.
type Rating struct {
	ID        string
	SubjectID string
	RaterID   string
	JobID     *string
	Value     float64
	Comment   *string
	Outlier   bool
	CreatedAt time.Time
}

// RatingAggregate is the stored running average and count for a subject.
type RatingAggregate struct {
	Average float64
	Count   int64
}
