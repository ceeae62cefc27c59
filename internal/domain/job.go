package domain

import "time"

// Job is work posted by a client.
type Job struct {
	ID           string
	ClientID     string
	FreelancerID *string
	Title        string
	Description  string
	Budget       int64
	Currency     string
	Status       JobStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Application is a freelancer's bid on a job.
type Application struct {
	ID           string
	JobID        string
	FreelancerID string
	CoverLetter  string
	BidAmount    int64
	Status       ApplicationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Milestone is a payable unit of delivery within a job.
type Milestone struct {
	ID            string
	JobID         string
	Title         string
	Amount        int64
	Currency      string
	Status        MilestoneStatus
	PayoutBatchID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
