package domain

import (
	"errors"
	"testing"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		ok       bool
	}{
		{JobOpen, JobInProgress, true},
		{JobOpen, JobCancelled, true},
		{JobInProgress, JobCompleted, true},
		{JobInProgress, JobCancelled, true},
		{JobOpen, JobCompleted, false},
		{JobCompleted, JobOpen, false},
		{JobCancelled, JobInProgress, false},
	}
	for _, tt := range tests {
		got, err := tt.from.Transition(tt.to)
		if tt.ok {
			if err != nil || got != tt.to {
				t.Fatalf("%s -> %s: got (%s, %v), want (%s, nil)", tt.from, tt.to, got, err, tt.to)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: err = %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
		if got != tt.from {
			t.Fatalf("%s -> %s: status changed to %s on failure", tt.from, tt.to, got)
		}
	}
}

func TestApplicationStatusTransitions(t *testing.T) {
	for _, next := range []ApplicationStatus{ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn} {
		if !ApplicationPending.CanTransition(next) {
			t.Fatalf("pending -> %s should be allowed", next)
		}
		if next.CanTransition(ApplicationPending) {
			t.Fatalf("%s -> pending should not be allowed", next)
		}
	}
	if ApplicationAccepted.CanTransition(ApplicationRejected) {
		t.Fatalf("accepted -> rejected should not be allowed")
	}
}

func TestMilestoneStatusTransitions(t *testing.T) {
	path := []MilestoneStatus{MilestonePending, MilestoneInProgress, MilestoneSubmitted, MilestoneApproved, MilestonePayoutPending, MilestonePaid}
	for i := 0; i < len(path)-1; i++ {
		if !path[i].CanTransition(path[i+1]) {
			t.Fatalf("%s -> %s should be allowed", path[i], path[i+1])
		}
	}
	if !MilestoneSubmitted.CanTransition(MilestoneInProgress) {
		t.Fatalf("revision request should be allowed")
	}
	if MilestonePending.CanTransition(MilestonePaid) {
		t.Fatalf("pending -> paid should not be allowed")
	}
	if MilestonePaid.CanTransition(MilestoneApproved) {
		t.Fatalf("paid is terminal")
	}
	if MilestoneApproved.CanTransition(MilestonePaid) {
		t.Fatalf("approved -> paid must go through payout_pending")
	}
	if !MilestonePayoutPending.CanTransition(MilestoneApproved) {
		t.Fatalf("a failed payout should release back to approved")
	}
}

func TestStatusValid(t *testing.T) {
	if JobStatus("archived").Valid() || ApplicationStatus("").Valid() || MilestoneStatus("done").Valid() {
		t.Fatalf("unknown statuses reported valid")
	}
	if !JobCancelled.Valid() || !ApplicationWithdrawn.Valid() || !MilestonePaid.Valid() || !MilestonePayoutPending.Valid() {
		t.Fatalf("known statuses reported invalid")
	}
	if !RoleClient.Valid() || Role("admin").Valid() {
		t.Fatalf("role validation mismatch")
	}
}
