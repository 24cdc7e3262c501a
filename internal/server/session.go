package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bebuch/localmin/internal/brent"
	"github.com/google/uuid"
)

// Session is a reverse-communication handshake carried over HTTP: the remote
// caller owns the objective and evaluates it out of band, the server only
// holds the minimizer state and answers with the next point to evaluate.
// This is the pattern the state machine exists for, with the two sides on
// different hosts.
type Session struct {
	ID      string
	Created time.Time

	// mu serializes Step calls: the state machine allows exactly one
	// in-flight transition per instance.
	mu    sync.Mutex
	min   *brent.Minimizer
	steps int
}

// SessionManager tracks live sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session on [low, high] and takes the startup step, so
// the response can already carry the first point to evaluate.
func (sm *SessionManager) Create(low, high float64) (*Session, float64, error) {
	m, err := brent.New(low, high)
	if err != nil {
		return nil, 0, err
	}

	session := &Session{
		ID:      uuid.New().String(),
		Created: time.Now(),
		min:     m,
	}
	point := m.Step(0) // placeholder value, ignored on startup

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	return session, point, nil
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[id]
	return session, exists
}

// Delete abandons a session. Discarding the instance is the only way to
// cancel a search.
func (sm *SessionManager) Delete(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[id]; !exists {
		return false
	}
	delete(sm.sessions, id)
	return true
}

// Step feeds an evaluation result into the session's minimizer and returns
// the next point plus whether the search just converged.
func (s *Session) Step(value float64) (point float64, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	point = s.min.Step(value)
	s.steps++
	return point, s.min.IsReady()
}

// Steps reports how many evaluation results have been fed in so far.
func (s *Session) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// createSessionRequest is the body of POST /api/v1/sessions.
type createSessionRequest struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// sessionResponse describes a session and the point awaiting evaluation.
type sessionResponse struct {
	ID          string  `json:"id"`
	Point       float64 `json:"point"`
	Done        bool    `json:"done"`
	Evaluations int     `json:"evaluations"`
}

// stepRequest is the body of POST /api/v1/sessions/:id/step.
type stepRequest struct {
	Value float64 `json:"value"`
}

// handleCreateSession handles POST /api/v1/sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	session, point, err := s.sessionManager.Create(req.Low, req.High)
	if err != nil {
		var ie *brent.IntervalError
		if errors.As(err, &ie) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:    session.ID,
		Point: point,
	})
}

// handleSessionStep handles POST /api/v1/sessions/:id/step.
func (s *Server) handleSessionStep(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.sessionManager.Get(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	point, done := session.Step(req.Value)

	writeJSON(w, http.StatusOK, sessionResponse{
		ID:          session.ID,
		Point:       point,
		Done:        done,
		Evaluations: session.Steps(),
	})
}

// handleDeleteSession handles DELETE /api/v1/sessions/:id.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !s.sessionManager.Delete(sessionID) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
