package closehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	fx "github.com/odyssey-erp/odyssey-gl/internal/accounting/testfixtures"
	"github.com/odyssey-erp/odyssey-gl/internal/close"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/rbac"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

const (
	closer = "finance.gl.view,finance.period.close"
	viewer = "finance.gl.view"
)

const aprilBody = `{"target":{"code":"2024-04","start_date":"2024-04-01","end_date":"2024-04-30"}}`

type queueSpy struct{ reqs []close.Request }

func (q *queueSpy) EnqueueRollover(_ context.Context, req close.Request) (string, error) {
	q.reqs = append(q.reqs, req)
	return "task-1", nil
}

func march() accounting.Snapshot {
	return accounting.Snapshot{
		Period: accounting.Period{
			ID:             1,
			OrganizationID: 7,
			Code:           "2024-03",
			StartDate:      fx.Day(2024, 3, 1),
			EndDate:        fx.Day(2024, 3, 31),
			Status:         accounting.PeriodStatusOpen,
		},
		Chart:    fx.Chart(nil),
		Controls: fx.Controls(),
		Transactions: []posting.Transaction{
			fx.Journal("JV-1", fx.Day(2024, 3, 1), fx.Bank, fx.Capital, "5000"),
			fx.Sale("INV-1", fx.Day(2024, 3, 5), "1000", "100"),
			fx.Expense("EXP-1", fx.Day(2024, 3, 12), fx.Rent, "250"),
		},
		Partners: []ledger.Partner{{ID: fx.CustomerID, Code: "C-1", Name: "Acme", Type: ledger.PartnerCustomer}},
	}
}

type fixture struct {
	router http.Handler
	ledger *accounting.MemoryStore
	queue  *queueSpy
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ledgerStore := accounting.NewMemoryStore(march())
	svc := close.NewService(close.NewMemoryStore(ledgerStore), nil, nil, nil, close.Options{Strict: true}, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC) })
	queue := &queueSpy{}
	m := rbac.Middleware{}
	h := NewHandler(nil, svc, queue, m)
	r := chi.NewRouter()
	r.With(m.Authenticate).Route("/orgs/{org}", h.MountRoutes)
	return fixture{router: r, ledger: ledgerStore, queue: queue}
}

func (f fixture) do(method, target, perms, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(shared.HeaderActorID, "42")
	req.Header.Set(shared.HeaderActorPermissions, perms)
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

func TestRolloverEndpointOpensNextPeriod(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/orgs/7/rollover", closer, aprilBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	res := decode[close.Result](t, rr)
	require.Equal(t, close.StatusComplete, res.Run.Status)
	require.Equal(t, int64(42), res.Run.ActorID)
	require.Equal(t, "2024-04", res.Period.Code)
	require.Equal(t, "750.00", res.Outcome.NetIncome.StringFixed(2))
	require.Equal(t, "2024-04", f.ledger.Snapshot().Period.Code)

	again := f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"period_code":"2024-03","target":{"code":"2024-05","start_date":"2024-05-01","end_date":"2024-05-31"}}`)
	require.Equal(t, http.StatusNotFound, again.Code, again.Body.String())
}

func TestRolloverEndpointPermissions(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/orgs/7/rollover", viewer, aprilBody)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "2024-03", f.ledger.Snapshot().Period.Code)

	rr = f.do(http.MethodGet, "/orgs/7/rollover", "", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRolloverEndpointRejectsBadTarget(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"target":{"code":"2024-04","start_date":"2024-03-15","end_date":"2024-04-30"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	problem := decode[httpx.ProblemDetail](t, rr)
	require.Equal(t, "Invalid Target Period", problem.Title)

	rr = f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"target":{"code":"2024-04","start_date":"01/04/2024","end_date":"2024-04-30"}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"target":{}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/orgs/8/rollover", closer, aprilBody)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRolloverStatusAndPreview(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/orgs/7/rollover", viewer, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st := decode[close.Status](t, rr)
	require.Equal(t, close.StatusReady, st.State.Status)
	require.Nil(t, st.LastRun)

	rr = f.do(http.MethodGet, "/orgs/7/rollover/preview?period=2024-03", viewer, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[close.Outcome](t, rr)
	require.Equal(t, "750.00", out.NetIncome.StringFixed(2))
	require.Equal(t, "2024-03", f.ledger.Snapshot().Period.Code)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orgs/7/rollover", closer, aprilBody).Code)
	rr = f.do(http.MethodGet, "/orgs/7/rollover", viewer, "")
	st = decode[close.Status](t, rr)
	require.Equal(t, close.StatusComplete, st.State.Status)
	require.NotNil(t, st.LastRun)
	require.Equal(t, int64(1), st.LastRun.FromPeriodID)
}

func TestRolloverEndpointQueuesAsyncRequests(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"async":true,"target":{"code":"2024-04","start_date":"2024-04-01","end_date":"2024-04-30"}}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Equal(t, "task-1", decode[queuedResponse](t, rr).TaskID)

	require.Len(t, f.queue.reqs, 1)
	req := f.queue.reqs[0]
	require.Equal(t, int64(7), req.OrganizationID)
	require.True(t, req.Elevated)
	require.True(t, fx.Day(2024, 4, 1).Equal(req.Target.StartDate))
	require.Equal(t, "2024-03", f.ledger.Snapshot().Period.Code)
}

func TestRolloverEndpointChecksAsyncPreconditions(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"async":true,"target":{"code":"2024-04","start_date":"2024-03-20","end_date":"2024-04-30"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	rr = f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"async":true,"period_code":"2023-12","target":{"code":"2024-04","start_date":"2024-04-01","end_date":"2024-04-30"}}`)
	require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
	require.Empty(t, f.queue.reqs)

	rr = f.do(http.MethodPost, "/orgs/7/rollover", closer, aprilBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = f.do(http.MethodPost, "/orgs/7/rollover", closer, `{"async":true,"period_code":"2024-04","target":{"code":"2024-05","start_date":"2024-05-01","end_date":"2024-05-31"}}`)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	require.Equal(t, "Period Not Ended", decode[httpx.ProblemDetail](t, rr).Title)
	require.Empty(t, f.queue.reqs)
}
