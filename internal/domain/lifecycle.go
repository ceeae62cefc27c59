package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not allowed from
// the current status.
var ErrInvalidTransition = errors.New("domain: invalid status transition")

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// ApplicationStatus is the lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneSubmitted  MilestoneStatus = "submitted"
	MilestoneApproved   MilestoneStatus = "approved"
	// MilestonePayoutPending marks a milestone whose payout request is in
	// flight. Only the payout flow moves milestones into or out of it.
	MilestonePayoutPending MilestoneStatus = "payout_pending"
	MilestonePaid          MilestoneStatus = "paid"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobOpen:       {JobInProgress, JobCancelled},
	JobInProgress: {JobCompleted, JobCancelled},
}

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending: {ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn},
}

// submitted -> in_progress is a revision request; payout_pending -> approved
// releases a claim whose payout failed.
var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestonePending:       {MilestoneInProgress},
	MilestoneInProgress:    {MilestoneSubmitted},
	MilestoneSubmitted:     {MilestoneApproved, MilestoneInProgress},
	MilestoneApproved:      {MilestonePayoutPending},
	MilestonePayoutPending: {MilestonePaid, MilestoneApproved},
}

func allowed[S ~string](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionErr[S ~string](from, to S) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobOpen, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	return allowed(jobTransitions, s, next)
}

// Transition returns next if the move is allowed.
func (s JobStatus) Transition(next JobStatus) (JobStatus, error) {
	if !s.CanTransition(next) {
		return s, transitionErr(s, next)
	}
	return next, nil
}

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn:
		return true
	}
	return false
}

// CanTransition reports whether an application may move from s to next.
func (s ApplicationStatus) CanTransition(next ApplicationStatus) bool {
	return allowed(applicationTransitions, s, next)
}

// Transition returns next if the move is allowed.
func (s ApplicationStatus) Transition(next ApplicationStatus) (ApplicationStatus, error) {
	if !s.CanTransition(next) {
		return s, transitionErr(s, next)
	}
	return next, nil
}

// Valid reports whether s is a known milestone status.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneInProgress, MilestoneSubmitted, MilestoneApproved, MilestonePayoutPending, MilestonePaid:
		return true
	}
	return false
}

// CanTransition reports whether a milestone may move from s to next.
func (s MilestoneStatus) CanTransition(next MilestoneStatus) bool {
	return allowed(milestoneTransitions, s, next)
}

// Transition returns next if the move is allowed.
func (s MilestoneStatus) Transition(next MilestoneStatus) (MilestoneStatus, error) {
	if !s.CanTransition(next) {
		return s, transitionErr(s, next)
	}
	return next, nil
}
