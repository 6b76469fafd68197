package orders_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/orders"
	"github.com/printhub/backoffice/internal/testing/harness"
)

func orderRouter(h *harness.Harness) http.Handler {
	r := chi.NewRouter()
	r.Route("/orders", orders.NewHandler(h.Logger, h.Orders, nil).MountRoutes)
	return r
}

func call(t *testing.T, r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func checkoutBody(clientID int64) string {
	return fmt.Sprintf(`{"client_id":%d,"payment_method":"bank_transfer","shipping_fee":3000,`+
		`"items":[{"product_name":"Photo book","folder_name":"wedding-2024","quantity":2,"unit_price":5000}]}`, clientID)
}

func TestHTTPHandlerOrderRoutes(t *testing.T) {
	h := harness.New(t, harness.Options{})
	c := newClient(h)
	first := createOrder(t, h, checkout(c.ID, "bank_transfer"))
	r := orderRouter(h)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"create", http.MethodPost, "/orders", checkoutBody(c.ID), http.StatusCreated, `"order_number":"240115-002"`},
		{"create malformed", http.MethodPost, "/orders", `{"client_id":`, http.StatusBadRequest, ""},
		{"create unknown field", http.MethodPost, "/orders", `{"client":1}`, http.StatusBadRequest, ""},
		{"create without items", http.MethodPost, "/orders", fmt.Sprintf(`{"client_id":%d,"payment_method":"card","items":[]}`, c.ID), http.StatusBadRequest, "Validation Failed"},
		{"create unknown client", http.MethodPost, "/orders", checkoutBody(404), http.StatusNotFound, ""},
		{"show", http.MethodGet, fmt.Sprintf("/orders/%d", first.ID), "", http.StatusOK, `"final_amount":14000`},
		{"show missing", http.MethodGet, "/orders/9999", "", http.StatusNotFound, "Not Found"},
		{"show bad id", http.MethodGet, "/orders/abc", "", http.StatusBadRequest, ""},
		{"list", http.MethodGet, fmt.Sprintf("/orders?client_id=%d", c.ID), "", http.StatusOK, `"orders":[`},
		{"list bad client", http.MethodGet, "/orders?client_id=x", "", http.StatusBadRequest, ""},
		{"list bad date", http.MethodGet, "/orders?from=15-01-2024", "", http.StatusBadRequest, ""},
		{"history", http.MethodGet, fmt.Sprintf("/orders/%d/history", first.ID), "", http.StatusOK, `"history":[`},
		{"ship before receipt", http.MethodPost, fmt.Sprintf("/orders/%d/status", first.ID), `{"status":"SHIPPED"}`, http.StatusConflict, "Invalid State"},
		{"receipt before inspection", http.MethodPost, fmt.Sprintf("/orders/%d/status", first.ID), `{"status":"RECEIPT_COMPLETED"}`, http.StatusConflict, ""},
		{"start inspection", http.MethodPost, fmt.Sprintf("/orders/%d/process", first.ID), `{"process":"inspection"}`, http.StatusOK, `"current_process":"inspection"`},
		{"duplicates", http.MethodPost, "/orders/duplicates/check", fmt.Sprintf(`{"client_id":%d,"folder_names":["wedding-2024"]}`, c.ID), http.StatusOK, `"duplicates":true`},
		{"adjust", http.MethodPost, fmt.Sprintf("/orders/%d/adjust", first.ID), `{"shipping_fee":0}`, http.StatusOK, `"final_amount":11000`},
		{"cancel", http.MethodPost, fmt.Sprintf("/orders/%d/cancel", first.ID), `{"reason":"client withdrew"}`, http.StatusOK, `"status":"CANCELLED"`},
		{"cancel again", http.MethodPost, fmt.Sprintf("/orders/%d/cancel", first.ID), `{"reason":"again"}`, http.StatusConflict, "Invalid State"},
		{"adjust cancelled", http.MethodPost, fmt.Sprintf("/orders/%d/adjust", first.ID), `{"shipping_fee":100}`, http.StatusConflict, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, r, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.want != "" {
				require.Contains(t, rec.Body.String(), tc.want)
			}
		})
	}
}

func TestHTTPHandlerBulkReportsPartialFailure(t *testing.T) {
	h := harness.New(t, harness.Options{})
	c := newClient(h)
	o := createOrder(t, h, checkout(c.ID, "card"))
	r := orderRouter(h)

	rec := call(t, r, http.MethodPost, "/orders/bulk/cancel", fmt.Sprintf(`{"ids":[%d,9998,9999],"reason":"cleanup"}`, o.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	require.Contains(t, body, `"success":1,"failed":2,"skipped":0`)
	require.Contains(t, body, `{"id":9998,`)
	require.Contains(t, body, `{"id":9999,`)

	rec = call(t, r, http.MethodPost, "/orders/bulk/cancel", fmt.Sprintf(`{"ids":[%d]}`, o.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":0,"failed":0,"skipped":1`)

	rec = call(t, r, http.MethodPost, "/orders/bulk/status", `{"ids":[],"status":"SHIPPED"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, r, http.MethodPost, "/orders/bulk/duplicate", fmt.Sprintf(`{"ids":[%d]}`, o.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"created":[`)
}

func TestHTTPHandlerDailyCapacity(t *testing.T) {
	h := harness.New(t, harness.Options{})
	c := newClient(h)
	h.DB.SeedOrder(orders.Order{
		OrderNumber: "240115-999",
		ClientID:    c.ID,
		ClientName:  c.Name,
		Status:      orders.StatusPendingReceipt,
	})
	r := orderRouter(h)

	rec := call(t, r, http.MethodPost, "/orders", checkoutBody(c.ID), "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "Daily Capacity Exceeded")
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	// The rejected checkout released its key, so the next day can reuse it.
	h.Clock.Advance(24 * time.Hour)
	rec = call(t, r, http.MethodPost, "/orders", checkoutBody(c.ID), "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"order_number":"240116-001"`)

	rec = call(t, r, http.MethodPost, "/orders", checkoutBody(c.ID), "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}
