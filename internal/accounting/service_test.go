package accounting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	fx "github.com/odyssey-erp/odyssey-gl/internal/accounting/testfixtures"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

const orgID = int64(7)

type memStore struct {
	mu       sync.Mutex
	snap     accounting.Snapshot
	loads    int
	inserted []posting.Transaction
	updated  []ledger.Partner
}

func (m *memStore) LoadSnapshot(_ context.Context, org int64, code string) (accounting.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if org != m.snap.Period.OrganizationID || (code != "" && code != m.snap.Period.Code) {
		return accounting.Snapshot{}, accounting.ErrPeriodNotFound
	}
	snap := m.snap
	snap.Transactions = append(append([]posting.Transaction(nil), m.snap.Transactions...), m.inserted...)
	return snap, nil
}

func (m *memStore) InsertTransaction(_ context.Context, _ accounting.Period, txn posting.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, txn)
	return nil
}

func (m *memStore) UpdatePartnerBalances(_ context.Context, _ int64, partners []ledger.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = partners
	return nil
}

type gate bool

func (g gate) UnderMaintenance(context.Context, int64) (bool, error) { return bool(g), nil }

func period() accounting.Period {
	return accounting.Period{
		ID:             1,
		OrganizationID: orgID,
		Code:           "2024-03",
		StartDate:      fx.Day(2024, 3, 1),
		EndDate:        fx.Day(2024, 3, 31),
		Status:         accounting.PeriodStatusOpen,
	}
}

func newStore(txns ...posting.Transaction) *memStore {
	return &memStore{snap: accounting.Snapshot{
		Period:       period(),
		Chart:        fx.Chart(nil),
		Controls:     fx.Controls(),
		Transactions: txns,
		Partners: []ledger.Partner{
			{ID: fx.CustomerID, Code: "C-1", Name: "Acme", Type: ledger.PartnerCustomer},
			{ID: fx.VendorID, Code: "V-1", Name: "Globex", Type: ledger.PartnerVendor},
		},
	}}
}

func book() []posting.Transaction {
	return []posting.Transaction{
		fx.Journal("JV-1", fx.Day(2024, 3, 1), fx.Bank, fx.Capital, "5000"),
		fx.Purchase("BILL-1", fx.Day(2024, 3, 2), "20", "50", "100"),
		fx.Sale("INV-1", fx.Day(2024, 3, 5), "1000", "100"),
		fx.Receipt("RCPT-1", fx.Day(2024, 3, 9), "400", "0"),
		fx.Expense("EXP-1", fx.Day(2024, 3, 12), fx.Rent, "250"),
	}
}

func malformedJournal() posting.JournalVoucher {
	return posting.JournalVoucher{
		Header: fx.Header("JV-BAD", fx.Day(2024, 3, 3)),
		Entries: []posting.JournalEntry{
			{AccountID: fx.Cash, Debit: fx.D("100")},
			{AccountID: fx.Capital, Credit: fx.D("90")},
		},
	}
}

func newCache(t *testing.T) (*accounting.ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return accounting.NewReportCache(client, time.Minute), mr
}

func TestServiceStatements(t *testing.T) {
	svc := accounting.NewService(newStore(book()...), nil, nil, accounting.Options{Strict: true}, nil)

	st, err := svc.Statements(context.Background(), accounting.Query{OrganizationID: orgID})
	require.NoError(t, err)
	require.True(t, st.TrialBalance.TotalDebit.Equal(st.TrialBalance.TotalCredit))
	require.Equal(t, "1000.00", st.IncomeStatement.Revenue.Total.StringFixed(2))
	require.Equal(t, "750.00", st.IncomeStatement.NetIncome.StringFixed(2))
	require.True(t, st.BalanceSheet.Assets.Total.Equal(st.BalanceSheet.TotalLiabilitiesAndEquity))
}

func TestServiceStrictModeRejectsReport(t *testing.T) {
	store := newStore(append(book(), malformedJournal())...)
	strict := accounting.NewService(store, nil, nil, accounting.Options{Strict: true}, nil)

	_, err := strict.TrialBalance(context.Background(), accounting.Query{OrganizationID: orgID})
	require.ErrorIs(t, err, shared.ErrMalformedTransaction)
	var reportErr *shared.ReportError
	require.ErrorAs(t, err, &reportErr)
	require.Len(t, reportErr.Rejected, 1)
	require.Equal(t, "JV-BAD", reportErr.Rejected[0].Ref)

	lenient := accounting.NewService(store, nil, nil, accounting.Options{}, nil)
	tb, err := lenient.TrialBalance(context.Background(), accounting.Query{OrganizationID: orgID})
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func TestServiceMaintenanceGate(t *testing.T) {
	store := newStore(book()...)
	svc := accounting.NewService(store, nil, gate(true), accounting.Options{}, nil)
	ctx := context.Background()

	_, err := svc.BalanceSheet(ctx, accounting.Query{OrganizationID: orgID})
	require.ErrorIs(t, err, shared.ErrMaintenance)
	_, err = svc.DayBook(ctx, accounting.Query{OrganizationID: orgID})
	require.ErrorIs(t, err, shared.ErrMaintenance)
	err = svc.RecordTransaction(ctx, orgID, "", fx.Sale("INV-2", fx.Day(2024, 3, 6), "10", "0"))
	require.ErrorIs(t, err, shared.ErrMaintenance)
	require.Zero(t, store.loads)
}

func TestServiceSubRange(t *testing.T) {
	svc := accounting.NewService(newStore(book()...), nil, nil, accounting.Options{Strict: true}, nil)
	ctx := context.Background()

	is, err := svc.IncomeStatement(ctx, accounting.Query{OrganizationID: orgID, From: fx.Day(2024, 3, 10), To: fx.Day(2024, 3, 31)})
	require.NoError(t, err)
	require.True(t, is.Revenue.Total.IsZero())
	require.Equal(t, "250.00", is.OperatingExpense.Total.StringFixed(2))

	_, err = svc.IncomeStatement(ctx, accounting.Query{OrganizationID: orgID, From: fx.Day(2024, 2, 1), To: fx.Day(2024, 3, 31)})
	require.ErrorIs(t, err, shared.ErrInvalidRange)

	_, err = svc.IncomeStatement(ctx, accounting.Query{OrganizationID: orgID, PeriodCode: "2023-12"})
	require.ErrorIs(t, err, accounting.ErrPeriodNotFound)
}

func TestServiceGeneralLedgerCarriesEarlierMovement(t *testing.T) {
	svc := accounting.NewService(newStore(book()...), nil, nil, accounting.Options{Strict: true}, nil)

	gl, err := svc.GeneralLedger(context.Background(), accounting.Query{OrganizationID: orgID, From: fx.Day(2024, 3, 5)}, fx.Bank)
	require.NoError(t, err)
	require.Equal(t, "5000.00", gl.Opening.StringFixed(2))
	require.Len(t, gl.Rows, 1)
	require.Equal(t, "RCPT-1", gl.Rows[0].Ref)
	require.Equal(t, "5400.00", gl.Closing.StringFixed(2))
}

func leafRow(t *testing.T, tb reports.TrialBalance, id int64) reports.TrialBalanceAccount {
	t.Helper()
	for _, g := range tb.Groups {
		for _, row := range g.Accounts {
			if row.ID == id {
				return row
			}
		}
	}
	t.Fatalf("account %d not in trial balance", id)
	return reports.TrialBalanceAccount{}
}

func TestServiceMidPeriodStatementsAgreeWithGeneralLedger(t *testing.T) {
	svc := accounting.NewService(newStore(book()...), nil, nil, accounting.Options{Strict: true}, nil)
	ctx := context.Background()
	q := accounting.Query{OrganizationID: orgID, From: fx.Day(2024, 3, 5)}

	gl, err := svc.GeneralLedger(ctx, q, fx.Bank)
	require.NoError(t, err)
	tb, err := svc.TrialBalance(ctx, q)
	require.NoError(t, err)
	bank := leafRow(t, tb, fx.Bank)
	require.Equal(t, gl.Opening.StringFixed(2), bank.Opening.StringFixed(2))
	require.Equal(t, gl.Closing.StringFixed(2), bank.Debit.StringFixed(2))
	require.Equal(t, "400.00", bank.PeriodDebit.StringFixed(2))

	full, err := svc.Statements(ctx, accounting.Query{OrganizationID: orgID})
	require.NoError(t, err)
	mid, err := svc.Statements(ctx, q)
	require.NoError(t, err)
	require.Equal(t, full.BalanceSheet.Assets.Total.StringFixed(2), mid.BalanceSheet.Assets.Total.StringFixed(2))
	require.Equal(t, "750.00", mid.BalanceSheet.NetIncome.StringFixed(2))
	require.Equal(t, "1000.00", mid.IncomeStatement.Revenue.Total.StringFixed(2))
	require.Equal(t, "750.00", mid.IncomeStatement.NetIncome.StringFixed(2))
}

func TestServicePartnerLedger(t *testing.T) {
	svc := accounting.NewService(newStore(book()...), nil, nil, accounting.Options{Strict: true}, nil)
	ctx := context.Background()

	pl, err := svc.PartnerLedger(ctx, accounting.Query{OrganizationID: orgID}, fx.CustomerID)
	require.NoError(t, err)
	require.Equal(t, "700.00", pl.Closing.StringFixed(2))

	vendor, err := svc.PartnerLedger(ctx, accounting.Query{OrganizationID: orgID, From: fx.Day(2024, 3, 3)}, fx.VendorID)
	require.NoError(t, err)
	require.Equal(t, "-1100.00", vendor.Opening.StringFixed(2))
	require.Empty(t, vendor.Rows)

	_, err = svc.PartnerLedger(ctx, accounting.Query{OrganizationID: orgID}, 999)
	require.ErrorIs(t, err, shared.ErrPartnerNotFound)
}

func TestServiceRecordTransaction(t *testing.T) {
	cache, _ := newCache(t)
	store := newStore(book()...)
	svc := accounting.NewService(store, cache, gate(false), accounting.Options{Strict: true}, nil)
	ctx := context.Background()

	before, err := svc.TrialBalance(ctx, accounting.Query{OrganizationID: orgID})
	require.NoError(t, err)

	require.NoError(t, svc.RecordTransaction(ctx, orgID, "2024-03", fx.Sale("INV-2", fx.Day(2024, 3, 20), "200", "20")))
	require.Len(t, store.inserted, 1)

	after, err := svc.TrialBalance(ctx, accounting.Query{OrganizationID: orgID})
	require.NoError(t, err)
	require.Equal(t, "220.00", after.TotalDebit.Sub(before.TotalDebit).StringFixed(2))

	err = svc.RecordTransaction(ctx, orgID, "", fx.Sale("INV-3", fx.Day(2024, 4, 1), "10", "0"))
	require.ErrorIs(t, err, accounting.ErrDateOutOfRange)

	err = svc.RecordTransaction(ctx, orgID, "", malformedJournal())
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	err = svc.RecordTransaction(ctx, orgID, "", fx.Expense("EXP-2", fx.Day(2024, 3, 21), 521, "10"))
	require.ErrorIs(t, err, shared.ErrNotLeafAccount)
	require.Len(t, store.inserted, 1)
}

func TestServiceRecordTransactionClosedPeriod(t *testing.T) {
	store := newStore()
	store.snap.Period.Status = accounting.PeriodStatusClosed
	svc := accounting.NewService(store, nil, nil, accounting.Options{}, nil)

	err := svc.RecordTransaction(context.Background(), orgID, "", fx.Sale("INV-2", fx.Day(2024, 3, 20), "200", "20"))
	require.ErrorIs(t, err, accounting.ErrPeriodClosed)
}

func TestServiceReportsAreCached(t *testing.T) {
	cache, _ := newCache(t)
	store := newStore(book()...)
	svc := accounting.NewService(store, cache, nil, accounting.Options{Strict: true}, nil)
	ctx := context.Background()
	q := accounting.Query{OrganizationID: orgID}

	first, err := svc.BalanceSheet(ctx, q)
	require.NoError(t, err)
	second, err := svc.BalanceSheet(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, store.loads)
	require.True(t, first.Assets.Total.Equal(second.Assets.Total))

	require.NoError(t, svc.Invalidate(ctx, orgID))
	_, err = svc.BalanceSheet(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 2, store.loads)
}

func TestServiceRefreshPartners(t *testing.T) {
	store := newStore(book()...)
	store.snap.Partners[0].Balance = decimal.RequireFromString("12")
	svc := accounting.NewService(store, nil, nil, accounting.Options{Strict: true}, nil)

	drifted, err := svc.RefreshPartners(context.Background(), accounting.Query{OrganizationID: orgID})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{fx.CustomerID, fx.VendorID}, drifted)
	require.Equal(t, "700.00", store.updated[0].Balance.StringFixed(2))
	require.Equal(t, "-1100.00", store.updated[1].Balance.StringFixed(2))
}

func TestServiceCheckIntegrity(t *testing.T) {
	svc := accounting.NewService(newStore(append(book(), malformedJournal())...), nil, nil, accounting.Options{Strict: true}, nil)

	report, err := svc.CheckIntegrity(context.Background(), orgID, "")
	require.NoError(t, err)
	require.False(t, report.Healthy())
	require.Len(t, report.Rejected, 1)
	require.True(t, report.TotalDebit.Equal(report.TotalCredit))
}

func TestFiscalContextFor(t *testing.T) {
	fc, err := accounting.FiscalContextFor(period(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "2024-03-01..2024-03-31", fc.Range.String())
	require.Equal(t, "2024-03", fc.PeriodCode)

	_, err = accounting.FiscalContextFor(period(), fx.Day(2024, 3, 10), fx.Day(2024, 3, 5))
	require.ErrorIs(t, err, shared.ErrInvalidRange)
}
