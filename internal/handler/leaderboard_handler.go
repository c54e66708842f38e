package handler

import (
	"net/http"

	"onetrivia/game-service/internal/service"
)

type LeaderboardHandler struct {
	leaderboardService service.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

func (h *LeaderboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/leaderboard", h.GetLeaderboard)
	mux.HandleFunc("/api/leaderboard/rank", h.GetUserRank)
}

// GetLeaderboard handles GET /api/leaderboard?period_id=&user_id=&limit=
// user_id is optional; when present the user's own entry rides along even
// when it falls outside the requested top slice.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	periodID, ok := queryUint64(r, "period_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "period_id is required")
		return
	}

	var userID *uint64
	if id, ok := queryUint64(r, "user_id"); ok {
		userID = &id
	}

	entries, err := h.leaderboardService.GetLeaderboard(r.Context(), periodID, userID, queryInt(r, "limit", 20))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// GetUserRank handles GET /api/leaderboard/rank?period_id=&user_id=
func (h *LeaderboardHandler) GetUserRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	periodID, ok := queryUint64(r, "period_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "period_id is required")
		return
	}
	userID, ok := queryUint64(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	entry, err := h.leaderboardService.GetUserRank(r.Context(), periodID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "no entry for user in period")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
