// Package server exposes the human-signal HTTP surface: ticket creation
// and status reads, and the resume/cancel endpoints that are the only
// way a suspended workflow advances. Handlers only read stores and
// enqueue work items; all execution happens in the scheduler.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

// Server serves the ticket API.
type Server struct {
	tickets    tickets.Store
	cps        checkpoint.Store
	q          queue.Queue
	entryGraph string
	logger     *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server. entryGraph names the graph new tickets start in.
func New(ticketStore tickets.Store, cps checkpoint.Store, q queue.Queue, entryGraph string, opts ...Option) *Server {
	s := &Server{tickets: ticketStore, cps: cps, q: q, entryGraph: entryGraph}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", s.handleCreateTicket)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetTicket)
			r.Post("/resume", s.handleResume)
			r.Post("/cancel", s.handleCancel)
		})
	})
	return r
}

type createTicketRequest struct {
	ID          string `json:"id,omitempty"`
	TenantID    string `json:"tenant_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RepoRef     string `json:"repo_ref,omitempty"`
}

type resumeRequest struct {
	Signal   string `json:"signal"`
	Feedback string `json:"feedback,omitempty"`
}

type ticketResponse struct {
	Ticket     *tickets.Ticket   `json:"ticket"`
	Checkpoint *checkpointStatus `json:"checkpoint,omitempty"`
}

// checkpointStatus is the externally visible slice of the active
// checkpoint: enough to see where the run is and, when suspended, what
// signal unblocks it.
type checkpointStatus struct {
	Graph            string    `json:"graph"`
	Stage            string    `json:"stage"`
	Status           string    `json:"status"`
	SuspensionReason string    `json:"suspension_reason,omitempty"`
	ExpectedSignal   string    `json:"expected_signal,omitempty"`
	RetryCount       int       `json:"retry_count"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and title are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	ticket := tickets.New(req.ID, req.TenantID, req.Title, req.RepoRef)
	ticket.Description = req.Description

	if err := s.tickets.Create(r.Context(), ticket); err != nil {
		if errors.Is(err, tickets.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "ticket already exists")
			return
		}
		s.serverError(w, "create ticket", err)
		return
	}
	if err := s.q.Enqueue(r.Context(), queue.NewStart(ticket.TenantID, ticket.ID, s.entryGraph)); err != nil {
		s.serverError(w, "enqueue start", err)
		return
	}

	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: ticket})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ticket, err := s.tickets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		s.serverError(w, "load ticket", err)
		return
	}

	resp := ticketResponse{Ticket: ticket}
	cp, err := s.cps.Load(r.Context(), id)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		// Terminal or not yet started; the ticket stage tells the story.
	case err != nil:
		s.serverError(w, "load checkpoint", err)
		return
	default:
		resp.Checkpoint = &checkpointStatus{
			Graph:            cp.GraphName,
			Stage:            cp.Stage,
			Status:           string(cp.Status),
			SuspensionReason: cp.SuspensionReason,
			ExpectedSignal:   cp.ExpectedSignal,
			RetryCount:       cp.RetryCount,
			LastError:        cp.LastError,
			UpdatedAt:        cp.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Signal != queue.SignalApproval && req.Signal != queue.SignalRejection {
		writeError(w, http.StatusBadRequest, "signal must be approval or rejection")
		return
	}

	ticket, err := s.tickets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		s.serverError(w, "load ticket", err)
		return
	}

	// Reject signals that nothing is waiting for, so callers get
	// immediate feedback instead of a silently dropped work item.
	cp, err := s.cps.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			writeError(w, http.StatusConflict, "ticket has no active run")
			return
		}
		s.serverError(w, "load checkpoint", err)
		return
	}
	if cp.Status != checkpoint.StatusSuspended {
		writeError(w, http.StatusConflict, "ticket is not awaiting a signal")
		return
	}

	item := queue.NewResume(ticket.TenantID, ticket.ID, queue.Signal{
		Type:     req.Signal,
		Feedback: req.Feedback,
	})
	if err := s.q.Enqueue(r.Context(), item); err != nil {
		s.serverError(w, "enqueue resume", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"item_id": item.ID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ticket, err := s.tickets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		s.serverError(w, "load ticket", err)
		return
	}
	if ticket.Stage.Terminal() {
		writeError(w, http.StatusConflict, "ticket is already terminal")
		return
	}

	item := queue.NewCancel(ticket.TenantID, ticket.ID)
	if err := s.q.Enqueue(r.Context(), item); err != nil {
		s.serverError(w, "enqueue cancel", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"item_id": item.ID})
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	if s.logger != nil {
		s.logger.Error("request failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
