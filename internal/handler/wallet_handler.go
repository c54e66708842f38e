package handler

import (
	"encoding/json"
	"net/http"

	"onetrivia/game-service/internal/service"
)

type WalletHandler struct {
	walletService service.WalletService
}

func NewWalletHandler(walletService service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

func (h *WalletHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/wallet", h.GetWallet)
	mux.HandleFunc("/api/wallet/transactions", h.ListTransactions)
	mux.HandleFunc("/api/wallet/ad-reward", h.ClaimAdReward)
	mux.HandleFunc("/api/wallet/daily-bonus", h.ClaimDailyBonus)
}

// GetWallet handles GET /api/wallet?user_id=
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := queryUint64(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	wallet, err := h.walletService.GetWallet(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": wallet.UserID,
		"balance": wallet.Balance,
	})
}

// ListTransactions handles GET /api/wallet/transactions?user_id=&type=&limit=
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := queryUint64(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	filters := map[string]interface{}{
		"limit": queryInt(r, "limit", 50),
	}
	if txType := r.URL.Query().Get("type"); txType != "" {
		filters["type"] = txType
	}

	transactions, err := h.walletService.ListTransactions(r.Context(), userID, filters)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// ClaimAdReward handles POST /api/wallet/ad-reward
func (h *WalletHandler) ClaimAdReward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		UserID uint64 `json:"user_id"`
		AdType string `json:"ad_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	balance, err := h.walletService.ClaimAdReward(r.Context(), service.ClaimAdRewardParams{
		UserID: req.UserID,
		AdType: req.AdType,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance": balance,
	})
}

// ClaimDailyBonus handles POST /api/wallet/daily-bonus
func (h *WalletHandler) ClaimDailyBonus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		UserID uint64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	balance, err := h.walletService.ClaimDailyBonus(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance": balance,
	})
}
