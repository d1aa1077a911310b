package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/fulfillment"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/99degreesdevs/emuna-back/internal/redisx"
	"github.com/go-chi/chi/v5"
)

type PaymentApplier interface {
	ApplyPaymentOutcome(ctx context.Context, orderID, userID string, outcome fulfillment.Outcome) (fulfillment.PaymentResult, error)
}

// PaymentsHandler receives the payment provider webhook. The provider is
// authenticated upstream; the body names the buyer.
type PaymentsHandler struct {
	Engine PaymentApplier
	Cache  StatusCache
	Log    *slog.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/webhook/payments", h.notify)
}

func (h *PaymentsHandler) notify(w http.ResponseWriter, r *http.Request) {
	var req events.PaymentNotifiedPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.OrderID == "" || req.UserID == "" {
		writeError(w, r, h.Log, badRequest("orderId and userId are required"))
		return
	}
	outcome, err := fulfillment.ParseOutcome(req.Status)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.ApplyPaymentOutcome(ctx, req.OrderID, req.UserID, outcome)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.Cache != nil {
		err := h.Cache.Put(ctx, redisx.OrderStatus{
			OrderID:    res.OrderID,
			BuyerID:    req.UserID,
			Status:     string(res.Status),
			IsFinished: res.IsFinished,
			UpdatedAt:  time.Now().UTC(),
		})
		if err != nil {
			logging.OrDefault(h.Log).Warn("status cache write", "order_id", res.OrderID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"status": http.StatusOK})
}
