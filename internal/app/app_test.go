package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/observability"
	"github.com/printhub/backoffice/internal/shared"
	_ "github.com/printhub/backoffice/internal/testing/guard"
	"github.com/printhub/backoffice/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_ROOT", t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "Asia/Seoul", cfg.Location().String())
	require.Equal(t, "0.1", cfg.Rate().String())
	require.Equal(t, 100, cfg.BulkBatchSize)
	require.Equal(t, 30, cfg.DuplicateWindowDays)
	require.Equal(t, 8, cfg.ReconcileMaxAttempts)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"timezone":   {"BUSINESS_TIMEZONE": "Mars/Olympus"},
		"tax rate":   {"TAX_RATE": "1.5"},
		"tax format": {"TAX_RATE": "ten"},
		"batch size": {"BULK_BATCH_SIZE": "0"},
		"attempts":   {"RECONCILE_MAX_ATTEMPTS": "-1"},
		"storage":    {"STORAGE_ROOT": ""},
		"log level":  {"LOG_LEVEL": "loud"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORAGE_ROOT", t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoggerTagsServiceAndEnvironment(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, "backoffice-worker")

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.With(slog.String("component", "ledger")).Warn("kept", slog.Int64("ledger_id", 9))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "backoffice-worker", rec["service"])
	require.Equal(t, "staging", rec["env"])
	require.Equal(t, "ledger", rec["component"])
	require.Equal(t, "kept", rec["msg"])
	require.EqualValues(t, 9, rec["ledger_id"])
}

func TestNilConfigLoggerDefaultsToInfoText(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, nil, "backoffice-api")
	logger.Debug("dropped")
	logger.Info("started")
	require.Contains(t, buf.String(), "msg=started")
	require.Contains(t, buf.String(), "service=backoffice-api")
	require.NotContains(t, buf.String(), "dropped")
}

func TestNilConfigLocationIsUTC(t *testing.T) {
	var cfg *Config
	require.Equal(t, time.UTC, cfg.Location())
	require.False(t, cfg.IsProduction())
}

func TestInTestModeFromEnv(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestActorMiddleware(t *testing.T) {
	var seen int64 = -1
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(42), seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Zero(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterMountsOperationalEndpoints(t *testing.T) {
	router := NewRouter(RouterParams{
		Config:     &Config{AppRequestTimeout: time.Second},
		Metrics:    observability.NewMetrics(),
		JobHandler: jobs.NewHandler(nil, nil),
	})

	for _, path := range []string{"/healthz", "/metrics", "/jobs/health"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"), path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
