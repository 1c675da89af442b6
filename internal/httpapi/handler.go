package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"fila/ticket-service/internal/auth"
	"fila/ticket-service/internal/models"
	"fila/ticket-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store         store.Store
	tokens        *auth.TokenManager
	recentLimit   int
	secureCookies bool
}

type Options struct {
	RecentDisplayLimit int
	SecureCookies      bool
}

func NewHandler(store store.Store, tokens *auth.TokenManager, options Options) *Handler {
	limit := options.RecentDisplayLimit
	if limit <= 0 {
		limit = 5
	}
	return &Handler{
		store:         store,
		tokens:        tokens,
		recentLimit:   limit,
		secureCookies: options.SecureCookies,
	}
}

type signupRequest struct {
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createQueueRequest struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

type publicQueueResponse struct {
	QueueID string         `json:"queue_id"`
	Name    string         `json:"name"`
	Prefix  string         `json:"prefix"`
	Company models.Company `json:"company"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/auth/signup", h.handleSignup)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/me", h.handleMe)
	mux.HandleFunc("/queues", h.handleQueues)
	mux.HandleFunc("/queues/", h.handleQueueActions)
	mux.HandleFunc("/tickets/", h.handleTicketActions)
	mux.HandleFunc("/public/queue/", h.handlePublicQueue)
	mux.HandleFunc("/public/display/", h.handleDisplay)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signupRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.Email = strings.TrimSpace(req.Email)

	if req.CompanyName == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "company_name, email, and password are required")
		return
	}

	user, err := h.store.CreateAccount(r.Context(), store.SignupInput{
		CompanyName: req.CompanyName,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	token, err := h.tokens.Issue(user.UserID, user.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	setAuthCookie(w, token, h.tokens.TTL(), h.secureCookies)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	clearAuthCookie(w, h.secureCookies)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	user, err := h.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		queues, err := h.store.ListQueues(r.Context(), claims.CompanyID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, queues)
	case http.MethodPost:
		var req createQueueRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Prefix = strings.TrimSpace(req.Prefix)
		if req.Name == "" || req.Prefix == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name and prefix are required")
			return
		}

		queue, err := h.store.CreateQueue(r.Context(), store.CreateQueueInput{
			CompanyID: claims.CompanyID,
			Name:      req.Name,
			Prefix:    req.Prefix,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, queue)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleQueueActions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/queues/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	queueID := parts[0]
	if !isValidUUID(queueID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "queue id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleQueueBoard(w, r, claims.CompanyID, queueID)
	case len(parts) == 2 && parts[1] == "generate-ticket":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGenerateTicket(w, r, claims.CompanyID, queueID)
	case len(parts) == 2 && parts[1] == "next":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCallNext(w, r, claims.CompanyID, queueID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleQueueBoard(w http.ResponseWriter, r *http.Request, companyID, queueID string) {
	board, err := h.store.GetQueueBoard(r.Context(), companyID, queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleGenerateTicket(w http.ResponseWriter, r *http.Request, companyID, queueID string) {
	issued, err := h.store.IssueTicket(r.Context(), store.IssueTicketInput{
		QueueID:   queueID,
		CompanyID: companyID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, issued.Ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request, companyID, queueID string) {
	ticket, err := h.store.CallNext(r.Context(), store.CallNextInput{
		QueueID:   queueID,
		CompanyID: companyID,
		CalledAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "finish" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticketID := parts[0]
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	ticket, err := h.store.FinishTicket(r.Context(), store.FinishTicketInput{
		TicketID:   ticketID,
		CompanyID:  claims.CompanyID,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handlePublicQueue(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/public/queue/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	queueID := parts[0]
	if !isValidUUID(queueID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "queue id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		queue, company, err := h.store.GetPublicQueue(r.Context(), queueID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, publicQueueResponse{
			QueueID: queue.QueueID,
			Name:    queue.Name,
			Prefix:  queue.Prefix,
			Company: company,
		})
	case len(parts) == 2 && parts[1] == "generate-ticket":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		issued, err := h.store.IssueTicket(r.Context(), store.IssueTicketInput{
			QueueID:   queueID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, issued)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	companyID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/public/display/"), "/")
	if !isValidUUID(companyID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "company id must be a UUID")
		return
	}

	board, err := h.store.GetDisplayBoard(r.Context(), companyID, h.recentLimit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrQueueNotFound):
		return http.StatusNotFound, "queue_not_found", "queue not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrCompanyNotFound):
		return http.StatusNotFound, "company_not_found", "company not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrNoWaitingTicket):
		return http.StatusBadRequest, "queue_empty", "no tickets waiting"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrDuplicatePrefix):
		return http.StatusBadRequest, "duplicate_prefix", "a queue with this prefix already exists"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusBadRequest, "duplicate_email", "email already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
