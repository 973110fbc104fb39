package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// SnapshotSource loads the immutable report input of one period.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, orgID int64, periodCode string) (Snapshot, error)
}

// Store extends SnapshotSource with the writes the service performs.
type Store interface {
	SnapshotSource
	InsertTransaction(ctx context.Context, period Period, txn posting.Transaction) error
	UpdatePartnerBalances(ctx context.Context, orgID int64, partners []ledger.Partner) error
}

// MaintenanceGate reports whether an organization is being rolled over.
type MaintenanceGate interface {
	UnderMaintenance(ctx context.Context, orgID int64) (bool, error)
}

// Options tune report computation.
type Options struct {
	Tolerance decimal.Decimal
	// Strict turns any rejected transaction into a *shared.ReportError.
	Strict bool
}

// Query selects an organization, a period and an optional sub-range. A zero
// From/To covers the whole period; an empty PeriodCode selects the active one.
type Query struct {
	OrganizationID int64
	PeriodCode     string
	From           time.Time
	To             time.Time
}

func (q Query) cacheParts(report string) []string {
	code := q.PeriodCode
	if code == "" {
		code = "active"
	}
	parts := []string{report, code}
	if !q.From.IsZero() {
		parts = append(parts, q.From.Format(shared.DateLayout))
	}
	if !q.To.IsZero() {
		parts = append(parts, q.To.Format(shared.DateLayout))
	}
	return parts
}

// Statements bundles the three statements computed from one aggregation.
type Statements struct {
	TrialBalance    reports.TrialBalance    `json:"trial_balance"`
	IncomeStatement reports.IncomeStatement `json:"income_statement"`
	BalanceSheet    reports.BalanceSheet    `json:"balance_sheet"`
}

// IntegrityReport is the outcome of a ledger closure check.
type IntegrityReport struct {
	OrganizationID  int64                               `json:"organization_id"`
	PeriodCode      string                              `json:"period_code"`
	TotalDebit      decimal.Decimal                     `json:"total_debit"`
	TotalCredit     decimal.Decimal                     `json:"total_credit"`
	Rejected        []*shared.MalformedTransactionError `json:"-"`
	DriftedPartners []int64                             `json:"drifted_partners,omitempty"`
}

// Healthy reports whether the check found nothing to act on.
func (r IntegrityReport) Healthy() bool {
	return len(r.Rejected) == 0 && len(r.DriftedPartners) == 0 && r.TotalDebit.Equal(r.TotalCredit)
}

// Service serves financial reports over stored snapshots.
type Service struct {
	store  Store
	cache  *ReportCache
	gate   MaintenanceGate
	opts   Options
	logger *slog.Logger
}

// NewService constructs the report service. cache and gate may be nil.
func NewService(store Store, cache *ReportCache, gate MaintenanceGate, opts Options, logger *slog.Logger) *Service {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = shared.DefaultTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, gate: gate, opts: opts, logger: logger}
}

// Invalidate drops every cached report of orgID.
func (s *Service) Invalidate(ctx context.Context, orgID int64) error {
	return s.cache.Bump(ctx, orgID)
}

// TrialBalance returns the grouped trial balance of q.
func (s *Service) TrialBalance(ctx context.Context, q Query) (reports.TrialBalance, error) {
	var out reports.TrialBalance
	err := s.cached(ctx, q, "trial-balance", &out, func(ctx context.Context) (any, error) {
		snap, fc, err := s.open(ctx, q)
		if err != nil {
			return nil, err
		}
		res, err := s.aggregate(snap, fc, "trial balance")
		if err != nil {
			return nil, err
		}
		return reports.BuildTrialBalance(snap.Chart, res)
	})
	return out, err
}

// IncomeStatement returns the profit and loss statement of q.
func (s *Service) IncomeStatement(ctx context.Context, q Query) (reports.IncomeStatement, error) {
	var out reports.IncomeStatement
	err := s.cached(ctx, q, "income-statement", &out, func(ctx context.Context) (any, error) {
		snap, fc, err := s.open(ctx, q)
		if err != nil {
			return nil, err
		}
		res, err := s.aggregate(snap, fc, "income statement")
		if err != nil {
			return nil, err
		}
		return reports.BuildIncomeStatement(snap.Chart, res), nil
	})
	return out, err
}

// BalanceSheet returns the balance sheet of q.
func (s *Service) BalanceSheet(ctx context.Context, q Query) (reports.BalanceSheet, error) {
	var out reports.BalanceSheet
	err := s.cached(ctx, q, "balance-sheet", &out, func(ctx context.Context) (any, error) {
		snap, fc, err := s.open(ctx, q)
		if err != nil {
			return nil, err
		}
		res, err := s.aggregate(snap, fc, "balance sheet")
		if err != nil {
			return nil, err
		}
		return reports.BuildBalanceSheet(snap.Chart, res, s.opts.Tolerance)
	})
	return out, err
}

// Statements builds all three statements from a single aggregation.
func (s *Service) Statements(ctx context.Context, q Query) (Statements, error) {
	snap, fc, err := s.open(ctx, q)
	if err != nil {
		return Statements{}, err
	}
	res, err := s.aggregate(snap, fc, "statements")
	if err != nil {
		return Statements{}, err
	}
	var out Statements
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		tb, err := reports.BuildTrialBalance(snap.Chart, res)
		out.TrialBalance = tb
		return err
	})
	g.Go(func() error {
		out.IncomeStatement = reports.BuildIncomeStatement(snap.Chart, res)
		return nil
	})
	g.Go(func() error {
		bs, err := reports.BuildBalanceSheet(snap.Chart, res, s.opts.Tolerance)
		out.BalanceSheet = bs
		return err
	})
	if err := g.Wait(); err != nil {
		return Statements{}, err
	}
	return out, nil
}

// GeneralLedger lists the postings of accountID, or of the leaves beneath
// it, over q. The opening balance includes movement earlier in the period.
func (s *Service) GeneralLedger(ctx context.Context, q Query, accountID int64) (reports.GeneralLedger, error) {
	snap, fc, err := s.open(ctx, q)
	if err != nil {
		return reports.GeneralLedger{}, err
	}
	lines, err := s.journal(snap, fc, "general ledger")
	if err != nil {
		return reports.GeneralLedger{}, err
	}
	leaves := snap.Chart.DescendantLeaves(accountID)
	openings := snap.Chart.Openings()
	opening := decimal.Zero
	for _, id := range leaves {
		opening = opening.Add(openings[id])
	}
	before, within := split(ledger.ForAccounts(lines, leaves...), fc.Range)
	debit, credit := ledger.Totals(before)
	opening = opening.Add(debit).Sub(credit)
	return reports.BuildGeneralLedger(snap.Chart, within, fc.Range, accountID, opening)
}

// PartnerLedger lists the subsidiary ledger of one customer or vendor over q.
// The opening is the carried partner balance plus movement earlier in the period.
func (s *Service) PartnerLedger(ctx context.Context, q Query, partnerID int64) (reports.PartnerLedger, error) {
	snap, fc, err := s.open(ctx, q)
	if err != nil {
		return reports.PartnerLedger{}, err
	}
	partner, err := ledger.FindPartner(snap.Partners, partnerID)
	if err != nil {
		return reports.PartnerLedger{}, err
	}
	lines, err := s.journal(snap, fc, "partner ledger")
	if err != nil {
		return reports.PartnerLedger{}, err
	}
	before, within := split(ledger.PartnerLines(lines, partner, snap.Controls), fc.Range)
	debit, credit := ledger.Totals(before)
	return reports.BuildPartnerLedger(partner, within, fc.Range, snap.Controls, partner.Opening.Add(debit).Sub(credit)), nil
}

// DayBook lists every transaction entered in q.
func (s *Service) DayBook(ctx context.Context, q Query) (reports.DayBook, error) {
	snap, fc, err := s.open(ctx, q)
	if err != nil {
		return reports.DayBook{}, err
	}
	return reports.BuildDayBook(snap.Transactions, fc.Range), nil
}

// RecordTransaction validates txn against the period's chart and stores it.
func (s *Service) RecordTransaction(ctx context.Context, orgID int64, periodCode string, txn posting.Transaction) error {
	if err := s.checkGate(ctx, orgID); err != nil {
		return err
	}
	snap, err := s.store.LoadSnapshot(ctx, orgID, periodCode)
	if err != nil {
		return err
	}
	if snap.Period.Status != PeriodStatusOpen {
		return fmt.Errorf("%w: %s", ErrPeriodClosed, snap.Period.Code)
	}
	if txn != nil && !snap.Period.Range().Contains(txn.Head().Date) {
		return fmt.Errorf("%w: %s not in %s", ErrDateOutOfRange, txn.Head().Date.Format(shared.DateLayout), snap.Period.Range())
	}
	if _, err := posting.Validate(txn, snap.Chart, snap.Controls); err != nil {
		return err
	}
	if err := s.store.InsertTransaction(ctx, snap.Period, txn); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx, orgID); err != nil {
		s.logger.Warn("report cache bump failed", slog.Int64("org_id", orgID), slog.Any("error", err))
	}
	s.logger.Info("transaction recorded",
		slog.Int64("org_id", orgID),
		slog.String("period", snap.Period.Code),
		slog.String("kind", string(txn.Kind())),
		slog.String("ref", txn.Head().Ref))
	return nil
}

// RefreshPartners re-derives the cached partner balances and persists any drift.
func (s *Service) RefreshPartners(ctx context.Context, q Query) ([]int64, error) {
	snap, fc, err := s.open(ctx, q)
	if err != nil {
		return nil, err
	}
	lines, rejected := ledger.Journalize(snap.Chart, snap.Transactions, snap.Period.Range(), snap.Controls)
	if len(rejected) > 0 && s.opts.Strict {
		return nil, &shared.ReportError{Report: "partner balances", Rejected: rejected}
	}
	refreshed, drifted := reports.RefreshPartnerBalances(snap.Partners, lines, snap.Controls)
	if len(drifted) == 0 {
		return nil, nil
	}
	if err := s.store.UpdatePartnerBalances(ctx, fc.OrganizationID, refreshed); err != nil {
		return nil, err
	}
	s.logger.Info("partner balances refreshed", slog.Int64("org_id", fc.OrganizationID), slog.Int("drifted", len(drifted)))
	return drifted, nil
}

// CheckIntegrity aggregates the whole period and reports rejected
// transactions, trial balance closure and partner drift. It never fails on
// malformed input; the findings are returned instead.
func (s *Service) CheckIntegrity(ctx context.Context, orgID int64, periodCode string) (IntegrityReport, error) {
	snap, fc, err := s.open(ctx, Query{OrganizationID: orgID, PeriodCode: periodCode})
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{OrganizationID: orgID, PeriodCode: fc.PeriodCode}
	res, err := ledger.Aggregate(snap.Chart, snap.Transactions, fc.Range, ledger.Options{Controls: snap.Controls, Tolerance: s.opts.Tolerance})
	if err != nil {
		return report, err
	}
	report.Rejected = res.Rejected
	for _, bal := range reports.LeafBalances(snap.Chart, res) {
		closing := bal.Closing()
		if closing.IsPositive() {
			report.TotalDebit = report.TotalDebit.Add(closing)
		} else {
			report.TotalCredit = report.TotalCredit.Add(closing.Neg())
		}
	}
	lines, _ := ledger.Journalize(snap.Chart, snap.Transactions, fc.Range, snap.Controls)
	_, report.DriftedPartners = reports.RefreshPartnerBalances(snap.Partners, lines, snap.Controls)
	if !report.Healthy() {
		s.logger.Warn("ledger integrity findings",
			slog.Int64("org_id", orgID),
			slog.String("period", fc.PeriodCode),
			slog.Int("rejected", len(report.Rejected)),
			slog.Int("drifted_partners", len(report.DriftedPartners)))
	}
	return report, nil
}

func (s *Service) cached(ctx context.Context, q Query, report string, dest any, loader func(context.Context) (any, error)) error {
	if err := s.checkGate(ctx, q.OrganizationID); err != nil {
		return err
	}
	key, err := s.cache.Key(ctx, q.OrganizationID, q.cacheParts(report)...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(dest, value)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func (s *Service) checkGate(ctx context.Context, orgID int64) error {
	if s.gate == nil {
		return nil
	}
	busy, err := s.gate.UnderMaintenance(ctx, orgID)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w: organization %d", shared.ErrMaintenance, orgID)
	}
	return nil
}

// open loads the snapshot and resolves the fiscal context of q.
func (s *Service) open(ctx context.Context, q Query) (Snapshot, shared.FiscalContext, error) {
	if err := s.checkGate(ctx, q.OrganizationID); err != nil {
		return Snapshot{}, shared.FiscalContext{}, err
	}
	snap, err := s.store.LoadSnapshot(ctx, q.OrganizationID, q.PeriodCode)
	if err != nil {
		return Snapshot{}, shared.FiscalContext{}, err
	}
	fc, err := FiscalContextFor(snap.Period, q.From, q.To)
	if err != nil {
		return Snapshot{}, shared.FiscalContext{}, err
	}
	return snap, fc, nil
}

// FiscalContextFor resolves [from,to] inside period; zero bounds default to
// the period's own bounds.
func FiscalContextFor(period Period, from, to time.Time) (shared.FiscalContext, error) {
	pr := period.Range()
	if from.IsZero() {
		from = pr.From
	}
	if to.IsZero() {
		to = pr.To
	}
	r, err := shared.NewDateRange(from, to)
	if err != nil {
		return shared.FiscalContext{}, err
	}
	fc := shared.FiscalContext{
		OrganizationID: period.OrganizationID,
		PeriodCode:     period.Code,
		Period:         pr,
		Range:          r,
	}
	return fc, fc.Validate()
}

func (s *Service) aggregate(snap Snapshot, fc shared.FiscalContext, report string) (ledger.Result, error) {
	res, err := ledger.Aggregate(snap.Chart, snap.Transactions, fc.Range, ledger.Options{Controls: snap.Controls, Tolerance: s.opts.Tolerance, Since: fc.Period.From})
	if err != nil {
		s.logger.Error("ledger self-check failed", slog.Int64("org_id", fc.OrganizationID), slog.String("period", fc.PeriodCode), slog.Any("error", err))
		return ledger.Result{}, err
	}
	if len(res.Rejected) > 0 {
		s.logger.Warn("transactions rejected", slog.Int64("org_id", fc.OrganizationID), slog.String("report", report), slog.Int("count", len(res.Rejected)))
		if s.opts.Strict {
			return ledger.Result{}, res.Err(report)
		}
	}
	return res, nil
}

func (s *Service) journal(snap Snapshot, fc shared.FiscalContext, report string) ([]ledger.Line, error) {
	lines, rejected := ledger.Journalize(snap.Chart, snap.Transactions, snap.Period.Range(), snap.Controls)
	if len(rejected) > 0 {
		s.logger.Warn("transactions rejected", slog.Int64("org_id", fc.OrganizationID), slog.String("report", report), slog.Int("count", len(rejected)))
		if s.opts.Strict {
			return nil, &shared.ReportError{Report: report, Rejected: rejected}
		}
	}
	return lines, nil
}

// split separates lines dated before r from lines inside r.
func split(lines []ledger.Line, r shared.DateRange) (before, within []ledger.Line) {
	for _, l := range lines {
		switch {
		case shared.Day(l.Date).Before(r.From):
			before = append(before, l)
		case r.Contains(l.Date):
			within = append(within, l)
		}
	}
	return before, within
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *reports.TrialBalance:
		*d = value.(reports.TrialBalance)
	case *reports.IncomeStatement:
		*d = value.(reports.IncomeStatement)
	case *reports.BalanceSheet:
		*d = value.(reports.BalanceSheet)
	default:
		return errors.New("accounting: unsupported report type")
	}
	return nil
}
