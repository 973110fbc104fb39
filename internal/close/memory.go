package close

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
)

// NextSnapshot builds the opening snapshot of target from a computed outcome.
// The new period carries no transactions.
func NextSnapshot(from accounting.Snapshot, periodID int64, target Target, outcome Outcome) (accounting.Snapshot, error) {
	chart, err := coa.NewChart(outcome.Accounts)
	if err != nil {
		return accounting.Snapshot{}, err
	}
	return accounting.Snapshot{
		Period: accounting.Period{
			ID:             periodID,
			OrganizationID: from.Period.OrganizationID,
			Code:           target.Code,
			StartDate:      target.StartDate,
			EndDate:        target.EndDate,
			Status:         accounting.PeriodStatusOpen,
		},
		Chart:    chart,
		Controls: from.Controls,
		Partners: outcome.Partners,
		Items:    outcome.Items,
	}, nil
}

// MemoryStore keeps rollover runs next to an in-memory ledger so the offline
// CLI can roll a snapshot file forward.
type MemoryStore struct {
	ledger *accounting.MemoryStore

	mu     sync.Mutex
	runs   []Run
	closed []accounting.Snapshot
}

// NewMemoryStore wraps ledger.
func NewMemoryStore(ledger *accounting.MemoryStore) *MemoryStore {
	return &MemoryStore{ledger: ledger}
}

// LoadSnapshot delegates to the ledger.
func (m *MemoryStore) LoadSnapshot(ctx context.Context, orgID int64, periodCode string) (accounting.Snapshot, error) {
	return m.ledger.LoadSnapshot(ctx, orgID, periodCode)
}

// HasCompletedRun reports whether fromPeriodID was already rolled over.
func (m *MemoryStore) HasCompletedRun(_ context.Context, fromPeriodID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.FromPeriodID == fromPeriodID && r.Status == StatusComplete {
			return true, nil
		}
	}
	return false, nil
}

// StartRun records run.
func (m *MemoryStore) StartRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// FailRun overwrites the stored copy of run.
func (m *MemoryStore) FailRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replace(run)
}

// SaveOpening swaps the ledger to the new period and keeps the closed one.
func (m *MemoryStore) SaveOpening(ctx context.Context, run Run, from accounting.Period, target Target, outcome Outcome) (accounting.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := m.ledger.LoadSnapshot(ctx, from.OrganizationID, from.Code)
	if err != nil {
		return accounting.Period{}, err
	}
	next, err := NextSnapshot(current, from.ID+1, target, outcome)
	if err != nil {
		return accounting.Period{}, err
	}
	now := time.Now().UTC()
	closed, err := m.ledger.Swap(from, next, now)
	if err != nil {
		if errors.Is(err, accounting.ErrPeriodClosed) {
			return accounting.Period{}, fmt.Errorf("%w: %s", ErrPeriodAlreadyRolled, from.Code)
		}
		return accounting.Period{}, err
	}
	m.closed = append(m.closed, closed)

	run.Status = StatusComplete
	run.ToPeriodID = next.Period.ID
	run.NetIncome = outcome.NetIncome
	run.FinishedAt = &now
	return next.Period, m.replace(run)
}

// LatestRun returns the most recent run of orgID.
func (m *MemoryStore) LatestRun(_ context.Context, orgID int64) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].OrganizationID == orgID {
			return m.runs[i], nil
		}
	}
	return Run{}, ErrRunNotFound
}

// Closed returns the snapshots closed by completed rollovers, oldest first.
func (m *MemoryStore) Closed() []accounting.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]accounting.Snapshot(nil), m.closed...)
}

func (m *MemoryStore) replace(run Run) error {
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
}
