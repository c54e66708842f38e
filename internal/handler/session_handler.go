package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"onetrivia/game-service/internal/service"
)

type SessionHandler struct {
	sessionService service.SessionService
	scoringService service.ScoringService
}

func NewSessionHandler(sessionService service.SessionService, scoringService service.ScoringService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		scoringService: scoringService,
	}
}

func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions/join", h.Join)
	mux.HandleFunc("/api/sessions", h.GetSession)
	mux.HandleFunc("/api/sessions/questions", h.NextQuestions)
	mux.HandleFunc("/api/sessions/pause", h.Pause)
	mux.HandleFunc("/api/sessions/resume", h.Resume)
	mux.HandleFunc("/api/sessions/cancel", h.Cancel)
	mux.HandleFunc("/api/answers", h.SubmitAnswer)
}

// Join handles POST /api/sessions/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		UserID            uint64 `json:"user_id"`
		PeriodID          uint64 `json:"period_id"`
		DeviceFingerprint string `json:"device_fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessionService.Join(r.Context(), service.JoinParams{
		UserID:            req.UserID,
		PeriodID:          req.PeriodID,
		DeviceFingerprint: req.DeviceFingerprint,
		IPAddress:         clientIP(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GetSession handles GET /api/sessions?session_id=
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// NextQuestions handles GET /api/sessions/questions?session_id=&count=
func (h *SessionHandler) NextQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	questions, err := h.sessionService.GetNextQuestions(r.Context(), sessionID, queryInt(r, "count", 1))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
	})
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessionService.Pause)
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessionService.Resume)
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessionService.Cancel)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, sessionID string) error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := apply(r.Context(), req.SessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitAnswer handles POST /api/answers
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		SessionID           string  `json:"session_id"`
		QuestionID          uint64  `json:"question_id"`
		SelectedOption      *int    `json:"selected_option"`
		ResponseTimeSeconds float64 `json:"response_time_seconds"`
		IsSkipped           bool    `json:"is_skipped"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.scoringService.SubmitAnswer(r.Context(), service.SubmitAnswerParams{
		SessionID:           req.SessionID,
		QuestionID:          req.QuestionID,
		SelectedOption:      req.SelectedOption,
		ResponseTimeSeconds: req.ResponseTimeSeconds,
		IsSkipped:           req.IsSkipped,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
