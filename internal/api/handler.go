package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/usecase"
)

const (
	defaultHistoryLimit = 50
	defaultLeadMinutes  = 1
)

// Operator is the part of the session service exposed to operators
type Operator interface {
	Lobbies() []usecase.Summary
	Lobby(code string) (usecase.Summary, error)
	LobbyRecords(ctx context.Context) ([]*domain.LobbyRecord, error)
	CloseLobby(code, reason string) error
	FacilitatorStatus(code, chatroom string) (domain.FacilitatorStatus, error)
	RetryFacilitator(ctx context.Context, code, chatroom string) (string, error)
	RequestConclusion(ctx context.Context, code, chatroom string, minutesLeft int) (string, error)
	RequestInactivityCheck(ctx context.Context, code, chatroom string) (string, error)
	AbandonChatroom(code, chatroom string) error
	History(ctx context.Context, code, chatroom string, limit int) ([]*domain.MessageRecord, error)
}

// Server provides the admin HTTP API used by operators and the MCP tools
type Server struct {
	operator Operator
	logger   hclog.Logger
}

// NewServer creates a new API server
func NewServer(operator Operator, logger hclog.Logger) *Server {
	return &Server{operator: operator, logger: logger}
}

// Register mounts the admin routes on r
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/lobbies", s.handleLobbies).Methods(http.MethodGet)
	api.HandleFunc("/lobbies/{code}", s.handleLobby).Methods(http.MethodGet)
	api.HandleFunc("/lobbies/{code}", s.handleCloseLobby).Methods(http.MethodDelete)
	api.HandleFunc("/records/lobbies", s.handleLobbyRecords).Methods(http.MethodGet)
	const room = "/lobbies/{code}/chatrooms/{room}"
	api.HandleFunc(room, s.handleAbandon).Methods(http.MethodDelete)
	api.HandleFunc(room+"/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc(room+"/initialize", s.handleInitialize).Methods(http.MethodPost)
	api.HandleFunc(room+"/conclude", s.handleConclude).Methods(http.MethodPost)
	api.HandleFunc(room+"/inactivity", s.handleInactivity).Methods(http.MethodPost)
	api.HandleFunc(room+"/messages", s.handleMessages).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{"status": "ok", "lobbies": len(s.operator.Lobbies())})
}

// ============ Lobby Handlers ============

func (s *Server) handleLobbies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{"lobbies": s.operator.Lobbies()})
}

func (s *Server) handleLobby(w http.ResponseWriter, r *http.Request) {
	summary, err := s.operator.Lobby(mux.Vars(r)["code"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, summary)
}

func (s *Server) handleCloseLobby(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := s.operator.CloseLobby(code, "closed by operator"); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("lobby closed by operator", "lobby", code)
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleLobbyRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.operator.LobbyRecords(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"lobbies": records})
}

// ============ Chatroom Handlers ============

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	status, err := s.operator.FacilitatorStatus(vars["code"], vars["room"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"status": status, "stuck": status.Stuck()})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	text, err := s.operator.RetryFacilitator(r.Context(), vars["code"], vars["room"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"text": text})
}

func (s *Server) handleConclude(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinutesLeft int `json:"minutes_left"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.MinutesLeft <= 0 {
		req.MinutesLeft = defaultLeadMinutes
	}

	vars := mux.Vars(r)
	text, err := s.operator.RequestConclusion(r.Context(), vars["code"], vars["room"], req.MinutesLeft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"text": text, "sent": text != ""})
}

func (s *Server) handleInactivity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	text, err := s.operator.RequestInactivityCheck(r.Context(), vars["code"], vars["room"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"text": text, "sent": text != ""})
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.operator.AbandonChatroom(vars["code"], vars["room"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	vars := mux.Vars(r)
	messages, err := s.operator.History(r.Context(), vars["code"], vars["room"], limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"messages": messages})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrLobbyNotFound), errors.Is(err, domain.ErrChatroomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFacilitatorNotReady), errors.Is(err, domain.ErrFacilitatorClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrClassifier):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
