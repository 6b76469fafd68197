package reconcile

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/printhub/backoffice/internal/platform/httpx"
	"github.com/printhub/backoffice/internal/shared"
)

// HTTPHandler exposes pending reconciliations to operators.
type HTTPHandler struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
}

// NewHTTPHandler builds the handler.
func NewHTTPHandler(logger *slog.Logger, dispatcher *Dispatcher) *HTTPHandler {
	return &HTTPHandler{logger: logger, dispatcher: dispatcher}
}

// MountRoutes attaches the reconciliation routes.
func (h *HTTPHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/sweep", h.sweep)
}

func (h *HTTPHandler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "":
		status = StatusPending
	case StatusPending, StatusResolved, StatusAbandoned:
	default:
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 20)
	limit, offset := shared.LimitOffset(page, perPage)
	items, total, err := h.dispatcher.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("list reconciliations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *HTTPHandler) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Sweep(r.Context(), httpx.QueryInt(r, "limit", 100))
	if err != nil {
		h.logger.Error("sweep reconciliations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
