package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists general-ledger snapshots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting: repository not initialised")
	}
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if r == nil {
		return db.ErrNoPool
	}
	return db.WithTx(ctx, r.pool, fn)
}

// LoadSnapshot reads the chart, openings, controls, partners, items and
// transactions of one period. An empty code selects the earliest open period.
func (r *Repository) LoadSnapshot(ctx context.Context, orgID int64, periodCode string) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		period, err := FindPeriod(ctx, tx, orgID, periodCode)
		if err != nil {
			return err
		}
		snap, err = loadSnapshot(ctx, tx, period)
		return err
	})
	return snap, err
}

// InsertTransaction stores txn as a kind-tagged JSON payload. The period row
// is bumped in the same transaction, so the write either lands before a
// rollover reads the period or is refused once the period is closed.
func (r *Repository) InsertTransaction(ctx context.Context, period Period, txn posting.Transaction) error {
	return r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE gl_periods SET revision = revision + 1 WHERE id=$1 AND org_id=$2 AND status='OPEN'`, period.ID, period.OrganizationID)
		if err != nil {
			return periodConflict(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrPeriodClosed, period.Code)
		}
		return InsertTransaction(ctx, tx, period, txn)
	})
}

// UpdatePartnerBalances overwrites the cached partner balances.
func (r *Repository) UpdatePartnerBalances(ctx context.Context, orgID int64, partners []ledger.Partner) error {
	return r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return UpdatePartnerBalances(ctx, tx, orgID, partners)
	})
}

// ImportSnapshot writes a full snapshot for orgID, creating its period.
func (r *Repository) ImportSnapshot(ctx context.Context, orgID int64, snap Snapshot) (Period, error) {
	var period Period
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		period, err = InsertPeriod(ctx, tx, orgID, snap.Period)
		if err != nil {
			return err
		}
		for _, acc := range snap.Chart.Accounts() {
			if _, err := tx.Exec(ctx, `INSERT INTO gl_accounts (id, org_id, code, name, type, level, parent_id, is_cogs)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (org_id, id) DO UPDATE SET code=EXCLUDED.code, name=EXCLUDED.name, type=EXCLUDED.type, level=EXCLUDED.level, parent_id=EXCLUDED.parent_id, is_cogs=EXCLUDED.is_cogs`,
				acc.ID, orgID, acc.Code, acc.Name, string(acc.Type), acc.Level, acc.ParentID, acc.IsCOGS); err != nil {
				return err
			}
		}
		if err := InsertOpenings(ctx, tx, period.ID, snap.Chart.Openings()); err != nil {
			return err
		}
		for _, m := range snap.Controls.Mappings() {
			if _, err := tx.Exec(ctx, `INSERT INTO gl_control_accounts (org_id, module, key, account_id) VALUES ($1,$2,$3,$4)
ON CONFLICT (org_id, module, key) DO UPDATE SET account_id=EXCLUDED.account_id`, orgID, m.Module, m.Key, m.AccountID); err != nil {
				return err
			}
		}
		for _, p := range snap.Partners {
			if _, err := tx.Exec(ctx, `INSERT INTO gl_partners (id, org_id, code, name, type, account_id, balance) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (org_id, id) DO UPDATE SET code=EXCLUDED.code, name=EXCLUDED.name, type=EXCLUDED.type, account_id=EXCLUDED.account_id`,
				p.ID, orgID, p.Code, p.Name, string(p.Type), nullInt(p.AccountID), p.Balance); err != nil {
				return err
			}
		}
		openings := make(map[int64]decimal.Decimal, len(snap.Partners))
		for _, p := range snap.Partners {
			openings[p.ID] = p.Opening
		}
		if err := InsertPartnerOpenings(ctx, tx, period.ID, openings); err != nil {
			return err
		}
		quantities := make(map[int64]decimal.Decimal, len(snap.Items))
		for _, it := range snap.Items {
			if _, err := tx.Exec(ctx, `INSERT INTO gl_inventory_items (id, org_id, code, name) VALUES ($1,$2,$3,$4)
ON CONFLICT (org_id, id) DO UPDATE SET code=EXCLUDED.code, name=EXCLUDED.name`, it.ID, orgID, it.Code, it.Name); err != nil {
				return err
			}
			quantities[it.ID] = it.Quantity
		}
		if err := InsertItemOpenings(ctx, tx, period.ID, quantities); err != nil {
			return err
		}
		for _, txn := range snap.Transactions {
			if err := InsertTransaction(ctx, tx, period, txn); err != nil {
				return err
			}
		}
		return nil
	})
	return period, err
}

// ListOpenOrganizations returns the organizations that have an open period.
func (r *Repository) ListOpenOrganizations(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT org_id FROM gl_periods WHERE status='OPEN' ORDER BY org_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// FindPeriod loads a period by code, or the earliest open period when code is empty.
func FindPeriod(ctx context.Context, q Querier, orgID int64, code string) (Period, error) {
	var row pgx.Row
	if code == "" {
		row = q.QueryRow(ctx, `SELECT id, org_id, code, start_date, end_date, status, closed_at, revision
FROM gl_periods WHERE org_id=$1 AND status='OPEN' ORDER BY start_date LIMIT 1`, orgID)
	} else {
		row = q.QueryRow(ctx, `SELECT id, org_id, code, start_date, end_date, status, closed_at, revision
FROM gl_periods WHERE org_id=$1 AND code=$2`, orgID, code)
	}
	var p Period
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.Revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, fmt.Errorf("%w: org %d %q", ErrPeriodNotFound, orgID, code)
		}
		return Period{}, err
	}
	return p, nil
}

// InsertPeriod creates an open period and returns it with its id.
func InsertPeriod(ctx context.Context, q Querier, orgID int64, p Period) (Period, error) {
	p.OrganizationID = orgID
	if p.Status == "" {
		p.Status = PeriodStatusOpen
	}
	err := q.QueryRow(ctx, `INSERT INTO gl_periods (org_id, code, start_date, end_date, status) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		orgID, p.Code, p.StartDate, p.EndDate, string(p.Status)).Scan(&p.ID)
	if err != nil {
		return Period{}, err
	}
	return p, nil
}

// ClosePeriod marks p closed provided no transaction was recorded since p was
// read. A later revision yields ErrPeriodChanged.
func ClosePeriod(ctx context.Context, q Querier, p Period) error {
	tag, err := q.Exec(ctx, `UPDATE gl_periods SET status='CLOSED', closed_at=NOW() WHERE id=$1 AND status='OPEN' AND revision=$2`, p.ID, p.Revision)
	if err != nil {
		return periodConflict(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var (
		status   PeriodStatus
		revision int64
	)
	if err := q.QueryRow(ctx, `SELECT status, revision FROM gl_periods WHERE id=$1`, p.ID).Scan(&status, &revision); err != nil {
		return err
	}
	if status != PeriodStatusOpen {
		return fmt.Errorf("%w: period %d", ErrPeriodClosed, p.ID)
	}
	return fmt.Errorf("%w: period %d at revision %d, read %d", ErrPeriodChanged, p.ID, revision, p.Revision)
}

// periodConflict maps a serialization failure on the period row to ErrPeriodChanged.
func periodConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: %s", ErrPeriodChanged, pgErr.Message)
	}
	return err
}

// InsertOpenings writes leaf opening balances for a period.
func InsertOpenings(ctx context.Context, q Querier, periodID int64, balances map[int64]decimal.Decimal) error {
	for id, bal := range balances {
		if _, err := q.Exec(ctx, `INSERT INTO gl_account_openings (period_id, account_id, balance) VALUES ($1,$2,$3)`, periodID, id, bal); err != nil {
			return err
		}
	}
	return nil
}

// InsertItemOpenings writes item opening quantities for a period.
func InsertItemOpenings(ctx context.Context, q Querier, periodID int64, quantities map[int64]decimal.Decimal) error {
	for id, qty := range quantities {
		if _, err := q.Exec(ctx, `INSERT INTO gl_item_openings (period_id, item_id, quantity) VALUES ($1,$2,$3)`, periodID, id, qty); err != nil {
			return err
		}
	}
	return nil
}

// InsertPartnerOpenings writes the balance each partner carries into a period.
func InsertPartnerOpenings(ctx context.Context, q Querier, periodID int64, balances map[int64]decimal.Decimal) error {
	for id, bal := range balances {
		if _, err := q.Exec(ctx, `INSERT INTO gl_partner_openings (period_id, partner_id, balance) VALUES ($1,$2,$3)`, periodID, id, bal); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePartnerBalances overwrites the cached balance of each partner.
func UpdatePartnerBalances(ctx context.Context, q Querier, orgID int64, partners []ledger.Partner) error {
	for _, p := range partners {
		if _, err := q.Exec(ctx, `UPDATE gl_partners SET balance=$3 WHERE org_id=$1 AND id=$2`, orgID, p.ID, p.Balance); err != nil {
			return err
		}
	}
	return nil
}

// InsertTransaction stores one transaction in period.
func InsertTransaction(ctx context.Context, q Querier, period Period, txn posting.Transaction) error {
	payload, err := posting.MarshalTransaction(txn)
	if err != nil {
		return err
	}
	h := txn.Head()
	_, err = q.Exec(ctx, `INSERT INTO gl_transactions (id, org_id, period_id, kind, ref, txn_date, payload) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, period.OrganizationID, period.ID, string(txn.Kind()), h.Ref, h.Date, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, h.ID)
		}
		return err
	}
	return nil
}

func loadSnapshot(ctx context.Context, q Querier, period Period) (Snapshot, error) {
	accounts, err := listAccounts(ctx, q, period)
	if err != nil {
		return Snapshot{}, err
	}
	chart, err := coa.NewChart(accounts)
	if err != nil {
		return Snapshot{}, err
	}
	mappings, err := listMappings(ctx, q, period.OrganizationID)
	if err != nil {
		return Snapshot{}, err
	}
	controls, err := posting.ResolveControls(mappings)
	if err != nil {
		return Snapshot{}, err
	}
	txns, err := listTransactions(ctx, q, period)
	if err != nil {
		return Snapshot{}, err
	}
	partners, err := listPartners(ctx, q, period)
	if err != nil {
		return Snapshot{}, err
	}
	items, err := listItems(ctx, q, period)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Period:       period,
		Chart:        chart,
		Controls:     controls,
		Transactions: txns,
		Partners:     partners,
		Items:        items,
	}, nil
}

func listAccounts(ctx context.Context, q Querier, period Period) ([]coa.Account, error) {
	rows, err := q.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.level, a.parent_id, a.is_cogs, COALESCE(o.balance, 0)
FROM gl_accounts a
LEFT JOIN gl_account_openings o ON o.account_id = a.id AND o.period_id = $2
WHERE a.org_id = $1 ORDER BY a.code`, period.OrganizationID, period.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []coa.Account
	for rows.Next() {
		var a coa.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Level, &a.ParentID, &a.IsCOGS, &a.Balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func listMappings(ctx context.Context, q Querier, orgID int64) ([]posting.AccountMapping, error) {
	rows, err := q.Query(ctx, `SELECT module, key, account_id FROM gl_control_accounts WHERE org_id=$1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.AccountMapping
	for rows.Next() {
		var m posting.AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func listTransactions(ctx context.Context, q Querier, period Period) ([]posting.Transaction, error) {
	rows, err := q.Query(ctx, `SELECT id, payload FROM gl_transactions WHERE org_id=$1 AND period_id=$2 ORDER BY txn_date, ref, id`, period.OrganizationID, period.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.Transaction
	for rows.Next() {
		var (
			id      uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		txn, err := posting.UnmarshalTransaction(payload)
		if err != nil {
			return nil, fmt.Errorf("accounting: transaction %s: %w", id, err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func listPartners(ctx context.Context, q Querier, period Period) ([]ledger.Partner, error) {
	rows, err := q.Query(ctx, `SELECT p.id, p.code, p.name, p.type, COALESCE(p.account_id, 0), COALESCE(o.balance, 0), p.balance
FROM gl_partners p
LEFT JOIN gl_partner_openings o ON o.partner_id = p.id AND o.period_id = $2
WHERE p.org_id = $1 ORDER BY p.code`, period.OrganizationID, period.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Partner
	for rows.Next() {
		var p ledger.Partner
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.AccountID, &p.Opening, &p.Balance); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func listItems(ctx context.Context, q Querier, period Period) ([]ledger.Item, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.code, i.name, COALESCE(o.quantity, 0)
FROM gl_inventory_items i
LEFT JOIN gl_item_openings o ON o.item_id = i.id AND o.period_id = $2
WHERE i.org_id = $1 ORDER BY i.code`, period.OrganizationID, period.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Item
	for rows.Next() {
		var it ledger.Item
		if err := rows.Scan(&it.ID, &it.Code, &it.Name, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
