package intake

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// Handler wires HTTP requests to the intake engine. When a publisher and job
// store are configured, messages are accepted asynchronously and callers poll
// the job endpoint; otherwise the engine runs inline.
type Handler struct {
	service   Service
	publisher *Publisher
	jobs      JobRecorder
	logger    *logging.Logger
}

// HandlerOption customizes handler behavior.
type HandlerOption func(*Handler)

// WithAsyncProcessing routes inbound messages through the queue instead of
// the inline engine.
func WithAsyncProcessing(publisher *Publisher, jobs JobRecorder) HandlerOption {
	return func(h *Handler) {
		h.publisher = publisher
		h.jobs = jobs
	}
}

// NewHandler creates an intake handler.
func NewHandler(service Service, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if service == nil {
		panic("intake: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Message handles POST /intake/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.LeadID = strings.TrimSpace(req.LeadID)
	req.Message = strings.TrimSpace(req.Message)
	if req.LeadID == "" || req.Message == "" {
		http.Error(w, "lead_id and message are required", http.StatusBadRequest)
		return
	}

	if h.publisher != nil {
		h.enqueueMessage(w, r, req)
		return
	}

	resp, err := h.service.ProcessMessage(r.Context(), req)
	if err != nil && !errors.Is(err, ErrStatePersistence) {
		h.logger.Error("failed to process message", "error", err, "lead_id", req.LeadID)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	if err != nil {
		// The reply is still deliverable; the state write will be retried by
		// the next turn.
		h.logger.Warn("message processed with persistence failure", "lead_id", req.LeadID)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) enqueueMessage(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	jobID := uuid.NewString()

	if h.jobs != nil {
		record := &JobRecord{
			JobID:          jobID,
			LeadID:         req.LeadID,
			MessageRequest: &req,
		}
		if err := h.jobs.PutPending(r.Context(), record); err != nil {
			h.logger.Error("failed to record intake job", "error", err, "job_id", jobID)
			http.Error(w, "Failed to accept message", http.StatusInternalServerError)
			return
		}
	}

	if err := h.publisher.EnqueueMessage(r.Context(), jobID, req); err != nil {
		h.logger.Error("failed to enqueue intake job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to accept message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  jobID,
		"lead_id": req.LeadID,
		"status":  string(JobStatusPending),
	})
}

// Job handles GET /intake/jobs/{jobID}.
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "Job tracking not enabled", http.StatusNotFound)
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		http.Error(w, "jobID is required", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch intake job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to fetch job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
