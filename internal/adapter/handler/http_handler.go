package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hqtran/voucher-rush/internal/core/service"
)

type HTTPHandler struct {
	seckill *service.SeckillService
	shops   *service.ShopService
}

type SeckillRequest struct {
	VoucherID int64 `json:"voucher_id"`
	UserID    int64 `json:"user_id"`
}

type SeckillResponse struct {
	Success bool   `json:"success"`
	OrderID int64  `json:"order_id,omitempty"`
	Message string `json:"message"`
}

func NewHTTPHandler(seckill *service.SeckillService, shops *service.ShopService) *HTTPHandler {
	return &HTTPHandler{seckill: seckill, shops: shops}
}

func (h *HTTPHandler) Seckill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SeckillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SeckillResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.VoucherID <= 0 || req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, SeckillResponse{Success: false, Message: "missing required fields"})
		return
	}

	orderID, err := h.seckill.Seckill(r.Context(), req.VoucherID, req.UserID)
	if err != nil {
		status, message := seckillStatus(err)
		writeJSON(w, status, SeckillResponse{Success: false, Message: message})
		return
	}

	writeJSON(w, http.StatusOK, SeckillResponse{
		Success: true,
		OrderID: orderID,
		Message: "order placed successfully",
	})
}

func seckillStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrVoucherNotFound):
		return http.StatusNotFound, "voucher not found"
	case errors.Is(err, service.ErrSaleNotStarted):
		return http.StatusForbidden, "sale not started"
	case errors.Is(err, service.ErrSaleEnded):
		return http.StatusForbidden, "sale ended"
	case errors.Is(err, service.ErrOutOfStock):
		return http.StatusGone, "sold out"
	case errors.Is(err, service.ErrDuplicatePurchase):
		return http.StatusConflict, "already purchased"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusServiceUnavailable, "service overloaded, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *HTTPHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid shop id", http.StatusBadRequest)
		return
	}

	shop, err := h.shops.GetShopByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrShopNotFound) {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *HTTPHandler) ListShopTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	types, err := h.shops.ListShopTypes(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrShopNotFound) {
			http.Error(w, "no shop types", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
