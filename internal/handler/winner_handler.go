package handler

import (
	"encoding/json"
	"net/http"

	"onetrivia/game-service/internal/service"
)

type WinnerHandler struct {
	winnerService service.WinnerService
}

func NewWinnerHandler(winnerService service.WinnerService) *WinnerHandler {
	return &WinnerHandler{winnerService: winnerService}
}

func (h *WinnerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/winners", h.GetWinners)
	mux.HandleFunc("/api/periods/finalize", h.FinalizePeriod)
}

// GetWinners handles GET /api/winners?period_id=&viewer_id=
// viewer_id is the requesting user; absent means anonymous.
func (h *WinnerHandler) GetWinners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	periodID, ok := queryUint64(r, "period_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "period_id is required")
		return
	}

	var viewerID *uint64
	if id, ok := queryUint64(r, "viewer_id"); ok {
		viewerID = &id
	}

	winners, err := h.winnerService.GetWinners(r.Context(), periodID, viewerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"winners": winners,
	})
}

// FinalizePeriod handles POST /api/periods/finalize. The scheduled
// finalizer covers normal operation; this endpoint exists for operators.
func (h *WinnerHandler) FinalizePeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		PeriodID uint64 `json:"period_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PeriodID == 0 {
		writeError(w, http.StatusBadRequest, "period_id is required")
		return
	}

	winners, err := h.winnerService.FinalizePeriod(r.Context(), req.PeriodID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"winners": winners,
	})
}
