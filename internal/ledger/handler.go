package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/printhub/backoffice/internal/platform/httpx"
	"github.com/printhub/backoffice/internal/shared"
)

// Handler exposes sales and purchase ledgers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.listSales)
		r.Post("/", h.createDirect)
		r.Get("/{id}", h.showSales)
		r.Post("/{id}/receipts", h.addReceipt)
		r.Post("/{id}/confirm", h.confirmSales)
		r.Post("/{id}/cancel", h.cancelSales)
	})
	r.Route("/purchase", func(r chi.Router) {
		r.Get("/", h.listPurchase)
		r.Post("/", h.createPurchase)
		r.Get("/{id}", h.showPurchase)
		r.Post("/{id}/payments", h.addPayment)
		r.Post("/{id}/confirm", h.confirmPurchase)
		r.Post("/{id}/cancel", h.cancelPurchase)
	})
	r.Post("/overdue/refresh", h.refreshOverdue)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) filter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	f := ListFilter{
		PaymentStatus: PaymentStatus(q.Get("payment_status")),
		Status:        Status(q.Get("status")),
		Search:        q.Get("q"),
	}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ListFilter{}, httpx.ErrBadRequest
		}
		f.ClientID = &id
	}
	loc := h.service.seq.Location()
	from, err := httpx.QueryDate(r, "from", loc)
	if err != nil {
		return ListFilter{}, err
	}
	to, err := httpx.QueryDate(r, "to", loc)
	if err != nil {
		return ListFilter{}, err
	}
	f.From, f.To = from, to
	return f, nil
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, page, err := h.service.ListSalesLedgers(r.Context(), f, httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "per_page", 20))
	if err != nil {
		h.logger.Error("list sales ledgers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ledgers": items, "pagination": page})
}

func (h *Handler) showSales(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.GetSalesLedger(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) createDirect(w http.ResponseWriter, r *http.Request) {
	var in DirectSaleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.CreateDirect(r.Context(), in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("create direct sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) addReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ReceiptInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.AddReceipt(r.Context(), id, in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("add receipt", slog.Int64("ledger_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) confirmSales(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.Confirm(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) cancelSales(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	l, err := h.service.Cancel(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("cancel sales ledger", slog.Int64("ledger_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) refreshOverdue(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.UpdateOverdueStatus(r.Context())
	if err != nil {
		h.logger.Error("refresh overdue", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) listPurchase(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, page, err := h.service.ListPurchaseLedgers(r.Context(), f, httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "per_page", 20))
	if err != nil {
		h.logger.Error("list purchase ledgers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ledgers": items, "pagination": page})
}

func (h *Handler) showPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.GetPurchaseLedger(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var in PurchaseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.CreatePurchase(r.Context(), in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("create purchase", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in PaymentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.AddPurchasePayment(r.Context(), id, in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("add purchase payment", slog.Int64("ledger_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) confirmPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.ConfirmPurchase(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	l, err := h.service.CancelPurchase(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("cancel purchase ledger", slog.Int64("ledger_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}
