package ledger_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/testing/harness"
)

type httpStep struct {
	name   string
	method string
	path   string
	body   string
	status int
	want   string
}

func runSteps(t *testing.T, r http.Handler, steps []httpStep) {
	t.Helper()
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			rec := serve(r, st.method, st.path, st.body)
			require.Equal(t, st.status, rec.Code, rec.Body.String())
			if st.want != "" {
				require.True(t, strings.Contains(rec.Body.String(), st.want), rec.Body.String())
			}
		})
	}
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func ledgerRouter(h *harness.Harness) http.Handler {
	r := chi.NewRouter()
	r.Route("/ledgers", ledger.NewHandler(h.Logger, h.Ledgers).MountRoutes)
	return r
}

func TestHTTPHandlerSalesRoutes(t *testing.T) {
	h := harness.New(t, harness.Options{})
	l, err := h.Ledgers.CreateFromOrder(context.Background(), snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	r := ledgerRouter(h)
	base := fmt.Sprintf("/ledgers/sales/%d", l.ID)

	runSteps(t, r, []httpStep{
		{"show", http.MethodGet, base, "", http.StatusOK, `"total_amount":11000`},
		{"show missing", http.MethodGet, "/ledgers/sales/9999", "", http.StatusNotFound, "Not Found"},
		{"show bad id", http.MethodGet, "/ledgers/sales/abc", "", http.StatusBadRequest, ""},
		{"list", http.MethodGet, "/ledgers/sales?payment_status=unpaid", "", http.StatusOK, `"ledger_number":"` + l.LedgerNumber + `"`},
		{"list bad date", http.MethodGet, "/ledgers/sales?from=15-01-2024", "", http.StatusBadRequest, ""},
		{"receipt above outstanding", http.MethodPost, base + "/receipts", `{"amount":11001,"payment_method":"bank_transfer"}`, http.StatusUnprocessableEntity, "Excess Payment"},
		{"receipt without amount", http.MethodPost, base + "/receipts", `{"payment_method":"cash"}`, http.StatusBadRequest, "Validation Failed"},
		{"receipt", http.MethodPost, base + "/receipts", `{"amount":4000,"payment_method":"cash"}`, http.StatusCreated, `"outstanding_amount":7000`},
		{"receipt on missing ledger", http.MethodPost, "/ledgers/sales/9999/receipts", `{"amount":1,"payment_method":"cash"}`, http.StatusNotFound, ""},
		{"overdue refresh", http.MethodPost, "/ledgers/overdue/refresh", "", http.StatusOK, `"sales":0`},
		{"cancel", http.MethodPost, base + "/cancel", `{"reason":"duplicate"}`, http.StatusOK, `"sales_status":"CANCELLED"`},
		{"cancel again without body", http.MethodPost, base + "/cancel", "", http.StatusOK, `"outstanding_amount":0`},
		{"confirm cancelled", http.MethodPost, base + "/confirm", "", http.StatusConflict, "Invalid State"},
		{"receipt on cancelled", http.MethodPost, base + "/receipts", `{"amount":100,"payment_method":"cash"}`, http.StatusConflict, ""},
	})

	stored, err := h.Ledgers.GetSalesLedger(context.Background(), l.ID)
	require.NoError(t, err)
	require.Len(t, stored.Receipts, 1)
	require.Equal(t, ledger.StatusCancelled, stored.SalesStatus)
}

func TestHTTPHandlerConfirmAndDirectSale(t *testing.T) {
	h := harness.New(t, harness.Options{})
	l, err := h.Ledgers.CreateFromOrder(context.Background(), snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	r := ledgerRouter(h)

	runSteps(t, r, []httpStep{
		{"confirm", http.MethodPost, fmt.Sprintf("/ledgers/sales/%d/confirm", l.ID), "", http.StatusOK, `"sales_status":"CONFIRMED"`},
		{"confirm twice", http.MethodPost, fmt.Sprintf("/ledgers/sales/%d/confirm", l.ID), "", http.StatusOK, `"sales_status":"CONFIRMED"`},
		{"direct sale without client name", http.MethodPost, "/ledgers/sales", `{"payment_method":"cash","items":[{"product_name":"Reprint","quantity":1,"unit_price":1000}]}`, http.StatusBadRequest, ""},
		{"direct sale malformed", http.MethodPost, "/ledgers/sales", `[]`, http.StatusBadRequest, ""},
	})
}

func TestHTTPHandlerPurchaseRoutes(t *testing.T) {
	h := harness.New(t, harness.Options{})
	r := ledgerRouter(h)

	rec := serve(r, http.MethodPost, "/ledgers/purchase", `{"supplier_name":"Paper Mill","payment_method":"bank_transfer",`+
		`"items":[{"product_name":"A4 stock","quantity":1,"unit_price":10000}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID          int64 `json:"id"`
		TotalAmount int64 `json:"total_amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Positive(t, created.TotalAmount)
	base := fmt.Sprintf("/ledgers/purchase/%d", created.ID)

	runSteps(t, r, []httpStep{
		{"create without supplier", http.MethodPost, "/ledgers/purchase", `{"payment_method":"cash","items":[]}`, http.StatusBadRequest, ""},
		{"show", http.MethodGet, base, "", http.StatusOK, `"supplier_name":"Paper Mill"`},
		{"list", http.MethodGet, "/ledgers/purchase", "", http.StatusOK, `"ledgers":[`},
		{"payment above outstanding", http.MethodPost, base + "/payments", fmt.Sprintf(`{"amount":%d,"payment_method":"bank_transfer"}`, created.TotalAmount+1), http.StatusUnprocessableEntity, "Excess Payment"},
		{"payment", http.MethodPost, base + "/payments", `{"amount":1000,"payment_method":"bank_transfer"}`, http.StatusCreated, ""},
		{"confirm", http.MethodPost, base + "/confirm", "", http.StatusOK, ""},
		{"cancel", http.MethodPost, base + "/cancel", "", http.StatusOK, `"purchase_status":"CANCELLED"`},
		{"payment on cancelled", http.MethodPost, base + "/payments", `{"amount":1000,"payment_method":"bank_transfer"}`, http.StatusConflict, "Invalid State"},
		{"show missing", http.MethodGet, "/ledgers/purchase/9999", "", http.StatusNotFound, ""},
	})
}
