package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/go-chi/chi/v5"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	ReplacePackage(ctx context.Context, sku string, entries []catalog.PackageEntry) error
}

type CreditReader interface {
	CreditSummary(ctx context.Context, userID string) (ledger.CreditSummary, error)
}

// CatalogHandler serves products, bundle definitions and the caller's
// credit balance.
type CatalogHandler struct {
	Catalog Catalog
	Credits CreditReader
	Log     *slog.Logger
}

type replacePackageReq struct {
	Entries []catalog.PackageEntry `json:"entries"`
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Put("/packages/{sku}", h.replacePackage)
		r.Get("/credits/me", h.myCredits)
	})
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) replacePackage(w http.ResponseWriter, r *http.Request) {
	var req replacePackageReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	sku := chi.URLParam(r, "sku")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Catalog.ReplacePackage(ctx, sku, req.Entries); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "entries": req.Entries})
}

func (h *CatalogHandler) myCredits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sum, err := h.Credits.CreditSummary(ctx, UserID(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
