package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/fulfillment"
	"github.com/go-chi/chi/v5"
)

type Reserver interface {
	ReserveClass(ctx context.Context, classID, userID string) (fulfillment.ReservationResult, error)
	CancelReservation(ctx context.Context, classID, userID string) (fulfillment.ReservationResult, error)
}

type ClassesHandler struct {
	Engine Reserver
	Log    *slog.Logger
}

func (h *ClassesHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/classes/{id}/reservations", h.reserve)
		r.Delete("/classes/{id}/reservations", h.cancel)
	})
}

func (h *ClassesHandler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Engine.ReserveClass(ctx, chi.URLParam(r, "id"), UserID(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ClassesHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Engine.CancelReservation(ctx, chi.URLParam(r, "id"), UserID(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
