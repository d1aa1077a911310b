package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/99degreesdevs/emuna-back/internal/orders"
	"github.com/99degreesdevs/emuna-back/internal/redisx"
	"github.com/go-chi/chi/v5"
)

type Checkouter interface {
	Checkout(ctx context.Context, userID string, req orders.CheckoutRequest) (orders.Order, bool, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
}

type ShipmentReader interface {
	Shipments(ctx context.Context, orderID string) ([]ledger.Shipment, error)
}

// StatusCache is satisfied by redisx.StatusCache.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	Put(ctx context.Context, s redisx.OrderStatus) error
}

type OrdersHandler struct {
	Checkout  Checkouter
	Orders    OrderReader
	Shipments ShipmentReader
	Cache     StatusCache
	Log       *slog.Logger
}

type CreateOrderResp struct {
	Order      orders.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/shipments", h.listShipments)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, existed, err := h.Checkout.Checkout(ctx, UserID(ctx), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.cache(ctx, o)

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{Order: o, Idempotent: existed})
}

// getOrder serves the order status, from the cache when possible.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	user := UserID(ctx)

	if h.Cache != nil {
		s, hit, err := h.Cache.Get(ctx, orderID)
		if err != nil {
			logging.OrDefault(h.Log).Warn("status cache read", "order_id", orderID, "err", err)
		}
		if hit {
			if s.BuyerID != user {
				writeError(w, r, h.Log, notFound(orderID))
				return
			}
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	o, err := h.owned(ctx, orderID, user)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cache(ctx, o))
}

func (h *OrdersHandler) listShipments(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.owned(ctx, orderID, UserID(ctx)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	shipments, err := h.Shipments.Shipments(ctx, orderID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if shipments == nil {
		shipments = []ledger.Shipment{}
	}
	writeJSON(w, http.StatusOK, shipments)
}

// owned loads the order, hiding orders of other buyers behind not found.
func (h *OrdersHandler) owned(ctx context.Context, orderID, userID string) (orders.Order, error) {
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.BuyerID != userID {
		return orders.Order{}, notFound(orderID)
	}
	return o, nil
}

func (h *OrdersHandler) cache(ctx context.Context, o orders.Order) redisx.OrderStatus {
	s := redisx.OrderStatus{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		Status:     string(o.Status),
		IsFinished: o.IsFinished,
		UpdatedAt:  o.UpdatedAt,
	}
	if h.Cache != nil {
		if err := h.Cache.Put(ctx, s); err != nil {
			logging.OrDefault(h.Log).Warn("status cache write", "order_id", o.ID, "err", err)
		}
	}
	return s
}

func notFound(orderID string) error {
	return apperr.ErrOrderNotFound.Withf("order %s does not exist", orderID)
}
