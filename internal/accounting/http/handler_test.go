package accountinghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	fx "github.com/odyssey-erp/odyssey-gl/internal/accounting/testfixtures"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/rbac"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

const viewer = "finance.gl.view"

type gate bool

func (g gate) UnderMaintenance(context.Context, int64) (bool, error) { return bool(g), nil }

type keyStore struct {
	keys     map[string]bool
	released []string
}

func (k *keyStore) CheckAndInsert(_ context.Context, key, _ string) error {
	if k.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	k.keys[key] = true
	return nil
}

func (k *keyStore) Release(_ context.Context, key, _ string) error {
	delete(k.keys, key)
	k.released = append(k.released, key)
	return nil
}

func march(txns ...posting.Transaction) accounting.Snapshot {
	return accounting.Snapshot{
		Period: accounting.Period{
			ID:             1,
			OrganizationID: 7,
			Code:           "2024-03",
			StartDate:      fx.Day(2024, 3, 1),
			EndDate:        fx.Day(2024, 3, 31),
			Status:         accounting.PeriodStatusOpen,
		},
		Chart:        fx.Chart(nil),
		Controls:     fx.Controls(),
		Transactions: txns,
		Partners: []ledger.Partner{
			{ID: fx.CustomerID, Code: "C-1", Name: "Acme", Type: ledger.PartnerCustomer},
			{ID: fx.VendorID, Code: "V-1", Name: "Globex", Type: ledger.PartnerVendor},
		},
	}
}

func saleBook() []posting.Transaction {
	return []posting.Transaction{
		fx.Sale("INV-1", fx.Day(2024, 3, 5), "1000", "100"),
		fx.Receipt("RCPT-1", fx.Day(2024, 3, 9), "400", "0"),
	}
}

type fixture struct {
	router http.Handler
	store  *accounting.MemoryStore
	keys   *keyStore
}

func newFixture(t *testing.T, maintenance bool, txns ...posting.Transaction) fixture {
	t.Helper()
	store := accounting.NewMemoryStore(march(txns...))
	svc := accounting.NewService(store, nil, gate(maintenance), accounting.Options{Strict: true}, nil)
	keys := &keyStore{keys: map[string]bool{}}
	m := rbac.Middleware{}
	h := NewHandler(nil, svc, keys, m)
	r := chi.NewRouter()
	r.With(m.Authenticate).Route("/orgs/{org}", h.MountRoutes)
	return fixture{router: r, store: store, keys: keys}
}

func (f fixture) do(method, target, perms, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(shared.HeaderActorID, "42")
	req.Header.Set(shared.HeaderActorPermissions, perms)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func TestTrialBalanceEndpoint(t *testing.T) {
	f := newFixture(t, false, saleBook()...)
	rr := f.do(http.MethodGet, "/orgs/7/reports/trial-balance", viewer, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	tb := decode[reports.TrialBalance](t, rr)
	require.Equal(t, "1100.00", tb.TotalDebit.StringFixed(2))
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func TestReportEndpointsRespond(t *testing.T) {
	f := newFixture(t, false, saleBook()...)
	for _, path := range []string{
		"/orgs/7/reports/income-statement",
		"/orgs/7/reports/balance-sheet",
		"/orgs/7/reports/statements?period=2024-03",
		"/orgs/7/reports/day-book?from=2024-03-01&to=2024-03-06",
		"/orgs/7/ledger/accounts/1121",
	} {
		rr := f.do(http.MethodGet, path, viewer, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestPartnerLedgerEndpoint(t *testing.T) {
	f := newFixture(t, false, saleBook()...)
	rr := f.do(http.MethodGet, "/orgs/7/ledger/partners/501", viewer, "")
	require.Equal(t, http.StatusOK, rr.Code)

	pl := decode[reports.PartnerLedger](t, rr)
	require.Equal(t, "700.00", pl.Closing.StringFixed(2))
	require.Equal(t, reports.SideDebit, pl.Side)
	require.Len(t, pl.Rows, 2)
}

func TestReportErrorsMapToProblems(t *testing.T) {
	bad := posting.JournalVoucher{
		Header: fx.Header("JV-BAD", fx.Day(2024, 3, 3)),
		Entries: []posting.JournalEntry{
			{AccountID: fx.Cash, Debit: fx.D("100")},
			{AccountID: fx.Capital, Credit: fx.D("90")},
		},
	}
	f := newFixture(t, false, append(saleBook(), bad)...)

	rr := f.do(http.MethodGet, "/orgs/7/reports/trial-balance", viewer, "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	p := decode[httpx.ProblemDetail](t, rr)
	require.Contains(t, p.Detail, "JV-BAD")
	require.Len(t, p.Errors, 1)

	cases := map[string]int{
		"/orgs/7/reports/trial-balance?period=2023-12":                 http.StatusNotFound,
		"/orgs/7/reports/trial-balance?from=2024-03-20&to=2024-03-01": http.StatusBadRequest,
		"/orgs/7/reports/trial-balance?from=yesterday":                 http.StatusBadRequest,
		"/orgs/7/ledger/accounts/9999":                                 http.StatusNotFound,
		"/orgs/7/ledger/partners/999":                                  http.StatusNotFound,
		"/orgs/x/reports/day-book":                                     http.StatusBadRequest,
	}
	ok := newFixture(t, false, saleBook()...)
	for path, status := range cases {
		require.Equal(t, status, ok.do(http.MethodGet, path, viewer, "").Code, path)
	}
}

func TestMaintenanceReturnsRetryAfter(t *testing.T) {
	f := newFixture(t, true, saleBook()...)
	rr := f.do(http.MethodGet, "/orgs/7/reports/balance-sheet", viewer, "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRecordTransaction(t *testing.T) {
	f := newFixture(t, false)
	body := `{"kind":"JOURNAL","data":{"ref":"JV-9","date":"2024-03-10T00:00:00Z","entries":[` +
		`{"account_id":1111,"debit":"250","credit":"0"},{"account_id":3111,"debit":"0","credit":"250"}]}}`

	rr := f.do(http.MethodPost, "/orgs/7/transactions", viewer, body)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", body, shared.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[recordResponse](t, rr)
	require.Equal(t, "JV-9", created.Ref)
	require.Len(t, f.store.Snapshot().Transactions, 1)
	require.Equal(t, created.ID, f.store.Snapshot().Transactions[0].Head().ID)

	rr = f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", body, shared.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Len(t, f.store.Snapshot().Transactions, 1)
}

func TestRecordTransactionRequiresIdempotencyKey(t *testing.T) {
	f := newFixture(t, false)
	body := `{"kind":"JOURNAL","data":{"ref":"JV-9","date":"2024-03-10T00:00:00Z","entries":[` +
		`{"account_id":1111,"debit":"250","credit":"0"},{"account_id":3111,"debit":"0","credit":"250"}]}}`

	rr := f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, decode[httpx.ProblemDetail](t, rr).Detail, shared.HeaderIdempotencyKey)
	require.Empty(t, f.store.Snapshot().Transactions)

	rr = f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", body, shared.HeaderIdempotencyKey, "k-5")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decode[recordResponse](t, rr)

	// The key was consumed; once released the retry resolves to the same id.
	require.NoError(t, f.keys.Release(context.Background(), "k-5", "gl.transactions"))
	rr = f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", body, shared.HeaderIdempotencyKey, "k-5")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Duplicate Transaction", decode[httpx.ProblemDetail](t, rr).Title)
	require.Len(t, f.store.Snapshot().Transactions, 1)
	require.Equal(t, first.ID, f.store.Snapshot().Transactions[0].Head().ID)
}

func TestRecordTransactionRejections(t *testing.T) {
	f := newFixture(t, false)
	unbalanced := `{"kind":"JOURNAL","data":{"ref":"JV-1","date":"2024-03-10T00:00:00Z","entries":[` +
		`{"account_id":1111,"debit":"100","credit":"0"},{"account_id":3111,"debit":"0","credit":"90"}]}}`
	rr := f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", unbalanced, shared.HeaderIdempotencyKey, "k-2")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, []string{"k-2"}, f.keys.released)

	outside := strings.Replace(unbalanced, `"credit":"90"`, `"credit":"100"`, 1)
	outside = strings.Replace(outside, "2024-03-10", "2024-04-02", 1)
	rr = f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", outside, shared.HeaderIdempotencyKey, "k-3")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, decode[httpx.ProblemDetail](t, rr).Detail, "outside period")

	rr = f.do(http.MethodPost, "/orgs/7/transactions", "finance.gl.edit", `{"kind":"barter","data":{}}`, shared.HeaderIdempotencyKey, "k-4")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, f.store.Snapshot().Transactions)
}
