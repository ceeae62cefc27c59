package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
	"github.com/Clark-Hu/freelance-hub/internal/paypal"
	"github.com/Clark-Hu/freelance-hub/internal/repository"
)

type milestoneCreateRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"omitempty,payout_currency"`
}

type milestoneResponse struct {
	ID            string    `json:"id"`
	JobID         string    `json:"jobId"`
	Title         string    `json:"title"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	PayoutBatchID *string   `json:"payoutBatchId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type milestoneListResponse struct {
	Items []milestoneResponse `json:"items"`
}

type payoutResponse struct {
	Milestone    milestoneResponse `json:"milestone"`
	PayoutStatus string            `json:"payoutStatus"`
}

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	var req milestoneCreateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	job, err := s.repo.Jobs.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondStoreError(w, err, "create milestone")
		return
	}
	if job.ClientID != callerID(r.Context()) {
		s.respondForbidden(w, "Only the job owner can add milestones")
		return
	}

	currency := job.Currency
	if strings.TrimSpace(req.Currency) != "" {
		currency = normalizeCurrency(req.Currency)
	}
	ms, err := s.repo.Milestones.Create(r.Context(), repository.MilestoneCreateParams{
		JobID:    job.ID,
		Title:    strings.TrimSpace(req.Title),
		Amount:   req.Amount,
		Currency: currency,
	})
	if err != nil {
		s.respondStoreError(w, err, "create milestone")
		return
	}
	s.respondJSON(w, http.StatusCreated, toMilestoneResponse(ms))
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	job, err := s.repo.Jobs.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondStoreError(w, err, "list milestones")
		return
	}
	if !isParticipant(job, callerID(r.Context())) {
		s.respondForbidden(w, "Only job participants can view milestones")
		return
	}

	list, err := s.repo.Milestones.ListByJob(r.Context(), job.ID)
	if err != nil {
		s.respondStoreError(w, err, "list milestones")
		return
	}
	items := make([]milestoneResponse, 0, len(list))
	for _, ms := range list {
		items = append(items, toMilestoneResponse(ms))
	}
	s.respondJSON(w, http.StatusOK, milestoneListResponse{Items: items})
}

// handleMilestoneStatus moves a milestone along its lifecycle. The assigned
// freelancer starts and submits work; the client approves or sends it back.
func (s *Server) handleMilestoneStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	next := domain.MilestoneStatus(req.Status)
	switch next {
	case domain.MilestoneInProgress, domain.MilestoneSubmitted, domain.MilestoneApproved:
	default:
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be in_progress, submitted or approved")
		return
	}

	ms, job, ok := s.loadMilestoneJob(w, r, "update milestone")
	if !ok {
		return
	}
	caller := callerID(r.Context())
	if milestoneActorIsClient(ms.Status, next) {
		if job.ClientID != caller {
			s.respondForbidden(w, "Only the job owner can make this change")
			return
		}
	} else if job.FreelancerID == nil || *job.FreelancerID != caller {
		s.respondForbidden(w, "Only the assigned freelancer can make this change")
		return
	}

	updated, err := s.repo.Milestones.Transition(r.Context(), ms.ID, next)
	if err != nil {
		s.respondStoreError(w, err, "update milestone")
		return
	}
	s.metrics.MilestoneTransition(string(next))
	s.respondJSON(w, http.StatusOK, toMilestoneResponse(updated))
}

// handlePayout releases an approved milestone's amount to the freelancer's
// PayPal account and marks the milestone paid. The milestone is claimed
// (approved -> payout_pending) before PayPal is called, so concurrent requests
// for the same milestone cannot both send money.
func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	ms, job, ok := s.loadMilestoneJob(w, r, "release payout")
	if !ok {
		return
	}
	if job.ClientID != callerID(r.Context()) {
		s.respondForbidden(w, "Only the job owner can release payment")
		return
	}
	if ms.Status != domain.MilestoneApproved {
		s.respondError(w, http.StatusConflict, "CONFLICT", "Milestone must be approved before payout")
		return
	}
	if job.FreelancerID == nil {
		s.respondError(w, http.StatusConflict, "CONFLICT", "Job has no assigned freelancer")
		return
	}

	freelancer, err := s.repo.Users.GetByID(r.Context(), *job.FreelancerID)
	if err != nil {
		s.respondStoreError(w, err, "release payout")
		return
	}
	if freelancer.PaypalEmail == nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Freelancer has no PayPal account on file")
		return
	}

	ms, err = s.repo.Milestones.ClaimPayout(r.Context(), ms.ID)
	if err != nil {
		s.respondStoreError(w, err, "release payout")
		return
	}
	s.metrics.MilestoneTransition(string(domain.MilestonePayoutPending))

	// The claim must be settled even if the client goes away mid-request.
	settleCtx := context.WithoutCancel(r.Context())

	result, err := s.sendPayout(r.Context(), ms, *freelancer.PaypalEmail)
	if err != nil {
		s.metrics.Payout("failure")
		s.logger.Error("payout failed",
			zap.String("milestone_id", ms.ID),
			zap.Error(err),
		)
		if _, relErr := s.repo.Milestones.ReleasePayout(settleCtx, ms.ID); relErr != nil {
			s.logger.Error("payout claim not released",
				zap.String("milestone_id", ms.ID),
				zap.Error(relErr),
			)
		} else {
			s.metrics.MilestoneTransition(string(domain.MilestoneApproved))
		}
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Payment provider rejected the payout")
		return
	}
	s.metrics.Payout("success")

	paid, err := s.repo.Milestones.MarkPaid(settleCtx, ms.ID, result.BatchID)
	if err != nil {
		s.logger.Error("payout sent but milestone not marked paid",
			zap.String("milestone_id", ms.ID),
			zap.String("batch_id", result.BatchID),
			zap.Error(err),
		)
		s.respondStoreError(w, err, "release payout")
		return
	}
	s.metrics.MilestoneTransition(string(domain.MilestonePaid))

	s.respondJSON(w, http.StatusOK, payoutResponse{
		Milestone:    toMilestoneResponse(paid),
		PayoutStatus: result.Status,
	})
}

func (s *Server) sendPayout(ctx context.Context, ms domain.Milestone, receiver string) (*paypal.PayoutResult, error) {
	if s.payouts == nil {
		return nil, errors.New("payout client not configured")
	}
	timeout := time.Duration(s.cfg.PaypalTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.payouts.Payout(ctx, paypal.PayoutRequest{
		SenderBatchID: ms.ID,
		ReceiverEmail: receiver,
		Amount:        ms.Amount,
		Currency:      ms.Currency,
		Note:          "Milestone: " + ms.Title,
	})
}

func (s *Server) loadMilestoneJob(w http.ResponseWriter, r *http.Request, op string) (domain.Milestone, domain.Job, bool) {
	ms, err := s.repo.Milestones.GetByID(r.Context(), chi.URLParam(r, "milestoneID"))
	if err != nil {
		s.respondStoreError(w, err, op)
		return domain.Milestone{}, domain.Job{}, false
	}
	job, err := s.repo.Jobs.GetByID(r.Context(), ms.JobID)
	if err != nil {
		s.respondStoreError(w, err, op)
		return domain.Milestone{}, domain.Job{}, false
	}
	return ms, job, true
}

// milestoneActorIsClient reports whether moving from cur to next is the
// client's call. Approval and revision requests are; starting and submitting
// work are the freelancer's.
func milestoneActorIsClient(cur, next domain.MilestoneStatus) bool {
	switch next {
	case domain.MilestoneApproved:
		return true
	case domain.MilestoneInProgress:
		return cur == domain.MilestoneSubmitted
	}
	return false
}

func isParticipant(job domain.Job, userID string) bool {
	if userID == "" {
		return false
	}
	return job.ClientID == userID || (job.FreelancerID != nil && *job.FreelancerID == userID)
}

func toMilestoneResponse(ms domain.Milestone) milestoneResponse {
	return milestoneResponse{
		ID:            ms.ID,
		JobID:         ms.JobID,
		Title:         ms.Title,
		Amount:        ms.Amount,
		Currency:      ms.Currency,
		Status:        string(ms.Status),
		PayoutBatchID: ms.PayoutBatchID,
		CreatedAt:     ms.CreatedAt,
		UpdatedAt:     ms.UpdatedAt,
	}
}
