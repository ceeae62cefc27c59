package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
	"github.com/Clark-Hu/freelance-hub/internal/repository"
)

const defaultCurrency = "USD"

type jobCreateRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=10000"`
	Budget      int64  `json:"budget" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,payout_currency"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type jobResponse struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	FreelancerID *string   `json:"freelancerId,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Budget       int64     `json:"budget"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type jobListResponse struct {
	Items      []jobResponse `json:"items"`
	NextCursor *string       `json:"nextCursor,omitempty"`
}

type applicationCreateRequest struct {
	CoverLetter string `json:"coverLetter" validate:"max=5000"`
	BidAmount   int64  `json:"bidAmount" validate:"gte=0"`
}

type applicationResponse struct {
	ID           string    `json:"id"`
	JobID        string    `json:"jobId"`
	FreelancerID string    `json:"freelancerId"`
	CoverLetter  string    `json:"coverLetter"`
	BidAmount    int64     `json:"bidAmount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type applicationListResponse struct {
	Items []applicationResponse `json:"items"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if caller.Role != domain.RoleClient {
		s.respondForbidden(w, "Only clients can post jobs")
		return
	}

	var req jobCreateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	job, err := s.repo.Jobs.Create(r.Context(), repository.JobCreateParams{
		ClientID:    caller.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Budget:      req.Budget,
		Currency:    normalizeCurrency(req.Currency),
	})
	if err != nil {
		s.respondStoreError(w, err, "create job")
		return
	}

	w.Header().Set("Location", "/jobs/"+job.ID)
	s.respondJSON(w, http.StatusCreated, toJobResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filters, err := buildJobFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Jobs.List(r.Context(), filters)
	if err != nil {
		s.respondStoreError(w, err, "list jobs")
		return
	}

	items := make([]jobResponse, 0, len(result.Items))
	for _, job := range result.Items {
		items = append(items, toJobResponse(job))
	}
	s.respondJSON(w, http.StatusOK, jobListResponse{Items: items, NextCursor: result.NextCursor})
}

func buildJobFilters(query url.Values) (repository.JobListFilters, error) {
	var filters repository.JobListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("status")); val != "" {
		status := domain.JobStatus(val)
		if !status.Valid() {
			return filters, fmt.Errorf("invalid status value")
		}
		filters.Status = &status
	}
	if val := strings.TrimSpace(query.Get("clientId")); val != "" {
		filters.ClientID = &val
	}
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.repo.Jobs.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondStoreError(w, err, "fetch job")
		return
	}
	s.respondJSON(w, http.StatusOK, toJobResponse(job))
}

// handleJobStatus lets the job owner complete or cancel a job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	next := domain.JobStatus(req.Status)
	if next != domain.JobCompleted && next != domain.JobCancelled {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be completed or cancelled")
		return
	}

	job, err := s.repo.Jobs.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondStoreError(w, err, "update job")
		return
	}
	if job.ClientID != callerID(r.Context()) {
		s.respondForbidden(w, "Only the job owner can change its status")
		return
	}

	updated, err := s.repo.Jobs.Transition(r.Context(), job.ID, next)
	if err != nil {
		s.respondStoreError(w, err, "update job")
		return
	}
	s.respondJSON(w, http.StatusOK, toJobResponse(updated))
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if caller.Role != domain.RoleFreelancer {
		s.respondForbidden(w, "Only freelancers can apply to jobs")
		return
	}

	var req applicationCreateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	app, err := s.repo.Applications.Create(r.Context(), repository.ApplicationCreateParams{
		JobID:        chi.URLParam(r, "jobID"),
		FreelancerID: caller.ID,
		CoverLetter:  strings.TrimSpace(req.CoverLetter),
		BidAmount:    req.BidAmount,
	})
	if err != nil {
		s.respondStoreError(w, err, "create application")
		return
	}
	s.respondJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	job, err := s.repo.Jobs.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondStoreError(w, err, "list applications")
		return
	}
	if job.ClientID != callerID(r.Context()) {
		s.respondForbidden(w, "Only the job owner can list applications")
		return
	}

	apps, err := s.repo.Applications.ListByJob(r.Context(), job.ID)
	if err != nil {
		s.respondStoreError(w, err, "list applications")
		return
	}
	items := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		items = append(items, toApplicationResponse(app))
	}
	s.respondJSON(w, http.StatusOK, applicationListResponse{Items: items})
}

// handleApplicationStatus lets the job owner accept or reject an application
// and the applicant withdraw it.
func (s *Server) handleApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	next := domain.ApplicationStatus(req.Status)
	switch next {
	case domain.ApplicationAccepted, domain.ApplicationRejected, domain.ApplicationWithdrawn:
	default:
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be accepted, rejected or withdrawn")
		return
	}

	app, err := s.repo.Applications.GetByID(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		s.respondStoreError(w, err, "update application")
		return
	}
	caller := callerID(r.Context())
	if next == domain.ApplicationWithdrawn {
		if app.FreelancerID != caller {
			s.respondForbidden(w, "Only the applicant can withdraw an application")
			return
		}
	} else {
		job, err := s.repo.Jobs.GetByID(r.Context(), app.JobID)
		if err != nil {
			s.respondStoreError(w, err, "update application")
			return
		}
		if job.ClientID != caller {
			s.respondForbidden(w, "Only the job owner can accept or reject applications")
			return
		}
	}

	updated, err := s.repo.Applications.Transition(r.Context(), app.ID, next)
	if err != nil {
		s.respondStoreError(w, err, "update application")
		return
	}
	s.respondJSON(w, http.StatusOK, toApplicationResponse(updated))
}

func toJobResponse(job domain.Job) jobResponse {
	return jobResponse{
		ID:           job.ID,
		ClientID:     job.ClientID,
		FreelancerID: job.FreelancerID,
		Title:        job.Title,
		Description:  job.Description,
		Budget:       job.Budget,
		Currency:     job.Currency,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func toApplicationResponse(app domain.Application) applicationResponse {
	return applicationResponse{
		ID:           app.ID,
		JobID:        app.JobID,
		FreelancerID: app.FreelancerID,
		CoverLetter:  app.CoverLetter,
		BidAmount:    app.BidAmount,
		Status:       string(app.Status),
		CreatedAt:    app.CreatedAt,
		UpdatedAt:    app.UpdatedAt,
	}
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return defaultCurrency
	}
	return code
}
