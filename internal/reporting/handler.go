package reporting

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/printhub/backoffice/internal/platform/httpx"
)

var monthRegex = regexp.MustCompile(`^\d{4}-\d{2}$`)

const trendWindowMonths = 12

// HTTPHandler exposes the reports as JSON.
type HTTPHandler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHTTPHandler builds the handler.
func NewHTTPHandler(logger *slog.Logger, service *Service) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{logger: logger, service: service, now: time.Now}
}

// MountRoutes attaches the report routes.
func (h *HTTPHandler) MountRoutes(r chi.Router) {
	r.Get("/aging", h.aging)
	r.Get("/trend", h.trend)
	r.Get("/credit/{clientID}", h.credit)
	r.Get("/dashboard", h.dashboard)
}

func (h *HTTPHandler) asOf(r *http.Request) (time.Time, error) {
	d, err := httpx.QueryDate(r, "as_of", h.service.Location())
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return h.now(), nil
	}
	return *d, nil
}

func (h *HTTPHandler) month(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	if !monthRegex.MatchString(raw) {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM", httpx.ErrBadRequest, name)
	}
	t, err := time.ParseInLocation("2006-01", raw, h.service.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q", httpx.ErrBadRequest, name, raw)
	}
	return t, nil
}

func (h *HTTPHandler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *HTTPHandler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.fail(w, "aging report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) trend(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	to, err := h.month(r, "to", now)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := h.month(r, "from", monthStart(to, h.service.Location()).AddDate(0, 1-trendWindowMonths, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	points, err := h.service.MonthlyTrend(r.Context(), from, to)
	if err != nil {
		h.fail(w, "trend report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"points": points})
}

func (h *HTTPHandler) credit(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.IDParam(r, "clientID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := h.asOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.CreditScore(r.Context(), clientID, asOf)
	if err != nil {
		h.fail(w, "credit report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dash, err := h.service.Dashboard(r.Context(), asOf)
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}
