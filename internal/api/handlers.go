package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/maltedev/marketplace-scraper/internal/jobs"
	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/parser"
)

const (
	pendingWarnThreshold   = 1000
	deadLetterErrThreshold = 100
	maxRequestBodyBytes    = 1 << 20
	defaultListJobsLimit   = 50
)

// JobService is the part of the job manager the handlers use.
type JobService interface {
	CreateJob(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	SubmitMany(ctx context.Context, reqs []jobs.Request) ([]*jobs.Job, error)
	GetJob(jobID string) (*jobs.Job, error)
	ListJobs(limit int) []*jobs.Job
	GetJobProducts(jobID string) ([]*models.Product, error)
	GetStats() jobs.Stats
}

// ListingCounter reports stored listings per marketplace.
type ListingCounter interface {
	CountListings(ctx context.Context) (map[string]int64, error)
}

// OutboxCounter reports outbox events per status.
type OutboxCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Handlers struct {
	jobs     JobService
	listings ListingCounter
	outbox   OutboxCounter
	validate *validator.Validate
	logger   *slog.Logger
}

type Option func(*Handlers)

func WithListingCounter(c ListingCounter) Option {
	return func(h *Handlers) { h.listings = c }
}

func WithOutboxCounter(c OutboxCounter) Option {
	return func(h *Handlers) { h.outbox = c }
}

func NewHandlers(jobs JobService, logger *slog.Logger, opts ...Option) *Handlers {
	h := &Handlers{
		jobs:     jobs,
		validate: validator.New(),
		logger:   logger.With("component", "api"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// CreateJobResponse represents the job creation response
type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateJob handles new search job creation
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		h.jobError(w, err, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

type BatchRequest struct {
	Requests []jobs.Request `json:"requests" validate:"required,min=1,max=50,dive"`
}

// CreateJobs queues several searches at once.
func (h *Handlers) CreateJobs(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.jobs.SubmitMany(r.Context(), req.Requests)
	if err != nil {
		h.jobError(w, err, "failed to create jobs")
		return
	}

	resp := make([]CreateJobResponse, len(created))
	for i, job := range created {
		resp[i] = CreateJobResponse{JobID: job.ID, Status: job.Status, Message: "Job created successfully"}
	}
	h.respondJSON(w, http.StatusCreated, resp)
}

// GetJob handles job status retrieval
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		h.jobError(w, err, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs returns the newest jobs first. ?limit=0 lists all of them.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs(limit))
}

// GetJobProducts handles retrieving products found by a job
func (h *Handlers) GetJobProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.jobs.GetJobProducts(chi.URLParam(r, "jobID"))
	if err != nil {
		h.jobError(w, err, "failed to get products")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"products":    products,
		"total_count": len(products),
	})
}

type StatsResponse struct {
	Jobs     jobs.Stats       `json:"jobs"`
	Listings map[string]int64 `json:"listings,omitempty"`
	Outbox   map[string]int64 `json:"outbox,omitempty"`
}

// GetStats handles statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Jobs: h.jobs.GetStats()}

	if h.listings != nil {
		counts, err := h.listings.CountListings(r.Context())
		if err != nil {
			h.logger.Error("failed to count listings", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.Listings = counts
	}

	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Error("failed to count outbox events", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.Outbox = counts
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Health reports ok, or degrades on a growing outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Error("failed to check outbox", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		pending, dead := counts["pending"]+counts["failed"], counts["dead_letter"]
		health["outbox"] = map[string]int64{"pending": pending, "dead_letter": dead}

		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if dead > deadLetterErrThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

type NormalizeRequest struct {
	Text string `json:"text" validate:"max=500"`
	Mode string `json:"mode" validate:"required,oneof=price number integer"`
}

type NormalizeResponse struct {
	Text  string `json:"text"`
	Mode  string `json:"mode"`
	Found bool   `json:"found"`
	Value any    `json:"value"`
}

// Normalize runs the number resolver on free text.
func (h *Handlers) Normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp := NormalizeResponse{Text: req.Text, Mode: req.Mode}
	switch req.Mode {
	case "price":
		if v, ok := parser.ParsePrice(req.Text); ok {
			resp.Found, resp.Value = true, v
		}
	case "number":
		if v, ok := parser.ExtractNumber(req.Text); ok {
			resp.Found, resp.Value = true, v
		}
	case "integer":
		if v, ok := parser.ExtractInteger(req.Text); ok {
			resp.Found, resp.Value = true, v
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should go on.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Namespace() + ": failed on " + fe.Tag()
	}
	return err.Error()
}

func (h *Handlers) jobError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrInvalidRequest):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		h.respondError(w, http.StatusInternalServerError, msg)
	}
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
