package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/printhub/backoffice/internal/platform/httpx"
	"github.com/printhub/backoffice/internal/shared"
)

// Handler exposes order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	bulk    func(http.Handler) http.Handler
}

// NewHandler builds the order HTTP handler. bulkLimiter, when non-nil, wraps
// the bulk endpoints.
func NewHandler(logger *slog.Logger, service *Service, bulkLimiter func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, bulk: bulkLimiter}
}

// MountRoutes attaches order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/duplicates/check", h.checkDuplicates)
	r.Group(func(r chi.Router) {
		if h.bulk != nil {
			r.Use(h.bulk)
		}
		r.Post("/bulk/status", h.bulkStatus)
		r.Post("/bulk/cancel", h.bulkCancel)
		r.Post("/bulk/delete", h.bulkDelete)
		r.Post("/bulk/duplicate", h.bulkDuplicate)
	})
	r.Get("/{id}", h.show)
	r.Get("/{id}/history", h.history)
	r.Post("/{id}/status", h.updateStatus)
	r.Post("/{id}/process", h.advanceProcess)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/adjust", h.adjust)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{Status: Status(q.Get("status")), Search: q.Get("q")}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.ErrBadRequest)
			return
		}
		f.ClientID = &id
	}
	loc := h.service.seq.Location()
	from, err := httpx.QueryDate(r, "from", loc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to", loc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f.From, f.To = from, to
	items, page, err := h.service.List(r.Context(), f, httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "per_page", 20))
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": items, "pagination": page})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	o, err := h.service.Create(r.Context(), req, key, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("create order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.UpdateStatus(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) advanceProcess(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ProcessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.AdvanceProcess(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Cancel(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AdjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.AdjustOrder(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("adjust order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) checkDuplicates(w http.ResponseWriter, r *http.Request) {
	var req DuplicateCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.FindDuplicates(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"duplicates": report.HasDuplicates(), "report": report})
}

func (h *Handler) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkUpdateStatus(r.Context(), req, shared.ActorFromContext(r.Context()))
	h.respondBulk(w, res, err)
}

func (h *Handler) bulkCancel(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkCancel(r.Context(), req, shared.ActorFromContext(r.Context()))
	h.respondBulk(w, res, err)
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkDelete(r.Context(), req, shared.ActorFromContext(r.Context()))
	h.respondBulk(w, res, err)
}

func (h *Handler) bulkDuplicate(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkDuplicate(r.Context(), req, shared.ActorFromContext(r.Context()))
	h.respondBulk(w, res, err)
}

func (h *Handler) respondBulk(w http.ResponseWriter, res BulkResult, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
