package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/freelance-hub/internal/domain"
	"github.com/Clark-Hu/freelance-hub/internal/repository"
)

type userCreateRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Email       string  `json:"email" validate:"required,email"`
	Role        string  `json:"role" validate:"required,oneof=client freelancer"`
	PaypalEmail *string `json:"paypalEmail" validate:"omitempty,email"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	PaypalEmail   *string   `json:"paypalEmail,omitempty"`
	RatingAverage float64   `json:"ratingAverage"`
	RatingCount   int64     `json:"ratingCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ratingRequest struct {
	Rating  *float64 `json:"rating" validate:"required,gte=0,lte=5"`
	JobID   *string  `json:"jobId" validate:"omitempty,min=1,max=64"`
	Comment *string  `json:"comment" validate:"omitempty,max=2000"`
}

type ratingSubmitResponse struct {
	UserID        string  `json:"userId"`
	Rating        float64 `json:"rating"`
	RatingAverage float64 `json:"ratingAverage"`
	RatingCount   int64   `json:"ratingCount"`
	Outlier       bool    `json:"outlier"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	RaterID   string    `json:"raterId"`
	JobID     *string   `json:"jobId,omitempty"`
	Rating    float64   `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	Outlier   bool      `json:"outlier"`
	CreatedAt time.Time `json:"createdAt"`
}

type ratingListResponse struct {
	Items []ratingResponse `json:"items"`
}

type ratingAggregateResponse struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.verifyBearer(r.Header.Get("Authorization")) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req userCreateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.repo.Users.Create(r.Context(), repository.UserCreateParams{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Role:        domain.Role(req.Role),
		PaypalEmail: normalizeStringPtr(req.PaypalEmail),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.respondError(w, http.StatusConflict, "CONFLICT", "Email already registered")
			return
		}
		s.respondStoreError(w, err, "create user")
		return
	}

	w.Header().Set("Location", "/users/"+user.ID)
	s.respondJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.repo.Users.GetByID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.respondStoreError(w, err, "fetch user")
		return
	}
	s.respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userID")
	rater, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if rater.ID == subjectID {
		s.respondForbidden(w, "Users cannot rate themselves")
		return
	}

	var req ratingRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	jobID := normalizeStringPtr(req.JobID)
	if jobID != nil {
		job, err := s.repo.Jobs.GetByID(r.Context(), *jobID)
		if err != nil {
			s.respondStoreError(w, err, "submit rating")
			return
		}
		if !jobPairs(job, rater.ID, subjectID) {
			s.respondForbidden(w, "Only the client and freelancer of a job can rate each other for it")
			return
		}
	}

	stored, agg, err := s.repo.Ratings.Apply(r.Context(), repository.RatingCreateParams{
		SubjectID: subjectID,
		RaterID:   rater.ID,
		JobID:     jobID,
		Value:     *req.Rating,
		Comment:   normalizeStringPtr(req.Comment),
	}, s.aggregator.Update)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.respondError(w, http.StatusConflict, "CONFLICT", "Rating for this job already submitted")
			return
		}
		s.respondStoreError(w, err, "submit rating")
		return
	}

	s.metrics.RatingSubmitted(stored.Outlier)
	if stored.Outlier {
		s.logger.Info("outlier rating dampened",
			zap.String("subject_id", subjectID),
			zap.Float64("rating", stored.Value),
			zap.Float64("average", agg.Average),
		)
	}

	s.respondJSON(w, http.StatusCreated, ratingSubmitResponse{
		UserID:        subjectID,
		Rating:        stored.Value,
		RatingAverage: agg.Average,
		RatingCount:   agg.Count,
		Outlier:       stored.Outlier,
	})
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userID")
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if _, err := s.repo.Users.GetByID(r.Context(), subjectID); err != nil {
		s.respondStoreError(w, err, "list ratings")
		return
	}
	ratings, err := s.repo.Ratings.ListBySubject(r.Context(), subjectID, limit)
	if err != nil {
		s.respondStoreError(w, err, "list ratings")
		return
	}

	items := make([]ratingResponse, 0, len(ratings))
	for _, rt := range ratings {
		items = append(items, ratingResponse{
			ID:        rt.ID,
			RaterID:   rt.RaterID,
			JobID:     rt.JobID,
			Rating:    rt.Value,
			Comment:   rt.Comment,
			Outlier:   rt.Outlier,
			CreatedAt: rt.CreatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, ratingListResponse{Items: items})
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	agg, err := s.repo.Ratings.Aggregate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.respondStoreError(w, err, "fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingAggregateResponse{
		Average: roundToOneDecimal(agg.Average),
		Count:   agg.Count,
	})
}

// currentUser loads the authenticated caller. A valid token for a user that
// no longer exists is treated as unauthenticated.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, err := s.lookupCaller(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return domain.User{}, false
		}
		s.respondStoreError(w, err, "load caller")
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) lookupCaller(ctx context.Context) (domain.User, error) {
	id := callerID(ctx)
	if id == "" {
		return domain.User{}, repository.ErrNotFound
	}
	return s.repo.Users.GetByID(ctx, id)
}

// jobPairs reports whether a and b are the client and assigned freelancer of
// job, in either order.
func jobPairs(job domain.Job, a, b string) bool {
	if job.FreelancerID == nil {
		return false
	}
	f := *job.FreelancerID
	return (job.ClientID == a && f == b) || (job.ClientID == b && f == a)
}

func toUserResponse(user domain.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Role:          string(user.Role),
		PaypalEmail:   user.PaypalEmail,
		RatingAverage: user.RatingAverage,
		RatingCount:   user.RatingCount,
		CreatedAt:     user.CreatedAt,
	}
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit value")
	}
	return limit, nil
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}
