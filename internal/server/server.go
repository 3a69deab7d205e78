// Package server exposes the intent pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/intent"
	"github.com/creatorbot/intent-kernel/internal/jsonx"
	"github.com/creatorbot/intent-kernel/internal/pipeline"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server provides the HTTP endpoints.
type Server struct {
	pipeline *pipeline.Pipeline
	store    Pinger
	logger   *zap.Logger
	started  time.Time
}

// NewServer creates a server. store may be nil.
func NewServer(p *pipeline.Pipeline, store Pinger, logger *zap.Logger) *Server {
	return &Server{
		pipeline: p,
		store:    store,
		logger:   logger.Named("http"),
		started:  time.Now(),
	}
}

// SetupRoutes configures the HTTP routes
func (s *Server) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/messages", s.handleMessage).Methods("POST")
	api.HandleFunc("/classify", s.handleClassify).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	users := api.PathPrefix("/users/{id}").Subrouter()
	users.HandleFunc("/state", s.handleGetState).Methods("GET")
	users.HandleFunc("/state", s.handlePatchState).Methods("PATCH")
	users.HandleFunc("/responses", s.handleRecordResponse).Methods("POST")
	users.HandleFunc("/history", s.handleHistory).Methods("GET")
	users.HandleFunc("/usage", s.handleUsage).Methods("GET")

	r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		pathTemplate, _ := route.GetPathTemplate()
		methods, _ := route.GetMethods()
		if len(methods) > 0 {
			s.logger.Debug("Route registered", zap.String("path", pathTemplate), zap.Strings("methods", methods))
		}
		return nil
	})
}

// Handler returns the router wrapped with panic recovery, access logging
// and CORS.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	s.SetupRoutes(router)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	stdLog := zap.NewStdLog(s.logger)
	var h http.Handler = router
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog), handlers.PrintRecoveryStack(true))(h)
	h = handlers.CombinedLoggingHandler(stdLog.Writer(), h)
	return cors(h)
}

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonx.Encode(w, v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON request body of at most maxBodyBytes into v. On
// failure it writes the error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}, invalid string) bool {
	err := jsonx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	s.writeError(w, http.StatusBadRequest, invalid)
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	storeStatus := "unconfigured"
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			status = "degraded"
			storeStatus = "unreachable"
		} else {
			storeStatus = "ok"
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"service": "intent-kernel",
		"store":   storeStatus,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg pipeline.Message
	if !s.decode(w, r, &msg, "Invalid request body") {
		return
	}

	out, err := s.pipeline.Handle(r.Context(), msg)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, out)
	case errors.Is(err, pipeline.ErrDuplicateMessage):
		s.writeError(w, http.StatusConflict, "Message already processed")
	case errors.Is(err, pipeline.ErrMissingUser):
		s.writeError(w, http.StatusBadRequest, "userId is required")
	default:
		s.logger.Warn("Turn aborted", zap.String("user_id", msg.UserID), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "Turn aborted")
	}
}

// ClassifyRequest is a stateless classification request.
type ClassifyRequest struct {
	Text     string          `json:"text"`
	UserID   string          `json:"userId,omitempty"`
	UserName string          `json:"userName,omitempty"`
	Greeting string          `json:"greeting,omitempty"`
	State    *dialogue.State `json:"state,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !s.decode(w, r, &req, "Invalid request body") {
		return
	}
	state := dialogue.DefaultState()
	if req.State != nil {
		state = *req.State
	}
	user := intent.User{ID: req.UserID, Name: req.UserName}
	s.writeJSON(w, http.StatusOK, s.pipeline.Engine().Classify(req.Text, user, state, req.Greeting))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.Engine().Stats())
}

func userID(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["id"])
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.State(r.Context(), userID(r)))
}

func (s *Server) handlePatchState(w http.ResponseWriter, r *http.Request) {
	var patch dialogue.Patch
	if !s.decode(w, r, &patch, "Invalid state patch") {
		return
	}
	s.writeJSON(w, http.StatusOK, s.pipeline.UpdateState(r.Context(), userID(r), patch))
}

func (s *Server) handleRecordResponse(w http.ResponseWriter, r *http.Request) {
	var rec pipeline.ResponseRecord
	if !s.decode(w, r, &rec, "Invalid request body") {
		return
	}
	state, err := s.pipeline.RecordResponse(r.Context(), userID(r), rec)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

type historyResponse struct {
	UserID string          `json:"userId"`
	Turns  []dialogue.Turn `json:"turns"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	turns := s.pipeline.History(r.Context(), id)
	if turns == nil {
		turns = []dialogue.Turn{}
	}
	s.writeJSON(w, http.StatusOK, historyResponse{UserID: id, Turns: turns})
}

type usageResponse struct {
	UserID string `json:"userId"`
	Count  int64  `json:"count"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	s.writeJSON(w, http.StatusOK, usageResponse{UserID: id, Count: s.pipeline.Usage(r.Context(), id)})
}
