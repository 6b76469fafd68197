package journal

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/printhub/backoffice/internal/platform/httpx"
	"github.com/printhub/backoffice/internal/shared"
)

// Handler exposes read endpoints over posted journals plus manual reversal.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds the journal HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes attaches journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listBySource)
	r.Get("/integrity", h.integrity)
	r.Post("/{id}/reverse", h.reverse)
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) listBySource(w http.ResponseWriter, r *http.Request) {
	sourceType := SourceType(r.URL.Query().Get("source_type"))
	sourceID, err := strconv.ParseInt(r.URL.Query().Get("source_id"), 10, 64)
	if sourceType == "" || err != nil || sourceID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: source_type and source_id required", httpx.ErrBadRequest))
		return
	}
	journals, err := h.service.GetJournalsBySource(r.Context(), sourceType, sourceID)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"journals": journals})
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -30)
	if d, err := httpx.QueryDate(r, "since", h.service.seq.Location()); err != nil {
		httpx.RespondError(w, err)
		return
	} else if d != nil {
		since = *d
	}
	imbalances, err := h.service.CheckIntegrity(r.Context(), since)
	if err != nil {
		h.logger.Error("journal integrity", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"since": since, "imbalances": imbalances})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reversal, err := h.service.CreateCancellationJournal(r.Context(), CancellationParams{
		OriginalJournalID: id,
		Reason:            req.Reason,
		CreatedBy:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}
