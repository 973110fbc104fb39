package accounting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
)

// MemoryStore serves one organization's active snapshot from memory. It backs
// the offline CLI and package tests.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
	seen map[string]struct{}
}

// NewMemoryStore constructs a store holding snap.
func NewMemoryStore(snap Snapshot) *MemoryStore {
	m := &MemoryStore{}
	m.Replace(snap)
	return m
}

// Snapshot returns the current snapshot.
func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copy()
}

// Replace swaps the held snapshot unconditionally.
func (m *MemoryStore) Replace(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(snap)
}

func (m *MemoryStore) replace(snap Snapshot) {
	m.snap = snap
	m.seen = make(map[string]struct{}, len(snap.Transactions))
	for _, txn := range snap.Transactions {
		m.seen[txn.Head().ID.String()] = struct{}{}
	}
}

// Swap closes the held period and replaces it with next, provided the held
// period is still the open revision of from. It returns the closed snapshot.
func (m *MemoryStore) Swap(from Period, next Snapshot, closedAt time.Time) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.snap.Period
	switch {
	case p.OrganizationID != from.OrganizationID || p.Code != from.Code:
		return Snapshot{}, fmt.Errorf("%w: org %d period %q", ErrPeriodNotFound, from.OrganizationID, from.Code)
	case p.Status != PeriodStatusOpen:
		return Snapshot{}, fmt.Errorf("%w: %s", ErrPeriodClosed, p.Code)
	case p.Revision != from.Revision:
		return Snapshot{}, fmt.Errorf("%w: %s at revision %d, read %d", ErrPeriodChanged, p.Code, p.Revision, from.Revision)
	}
	closed := m.copy()
	closed.Period.Status = PeriodStatusClosed
	closed.Period.ClosedAt = &closedAt
	m.replace(next)
	return closed, nil
}

// LoadSnapshot returns the held snapshot when orgID and periodCode match it.
func (m *MemoryStore) LoadSnapshot(_ context.Context, orgID int64, periodCode string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.snap.Period
	if orgID != p.OrganizationID || (periodCode != "" && periodCode != p.Code) {
		return Snapshot{}, fmt.Errorf("%w: org %d period %q", ErrPeriodNotFound, orgID, periodCode)
	}
	return m.copy(), nil
}

// ListOpenOrganizations returns the held organization while its period is open.
func (m *MemoryStore) ListOpenOrganizations(context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap.Period.Status != PeriodStatusOpen {
		return nil, nil
	}
	return []int64{m.snap.Period.OrganizationID}, nil
}

// InsertTransaction appends txn to the held period.
func (m *MemoryStore) InsertTransaction(_ context.Context, period Period, txn posting.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if period.Code != m.snap.Period.Code {
		return fmt.Errorf("%w: %s", ErrPeriodNotFound, period.Code)
	}
	if m.snap.Period.Status != PeriodStatusOpen {
		return fmt.Errorf("%w: %s", ErrPeriodClosed, period.Code)
	}
	id := txn.Head().ID.String()
	if _, dup := m.seen[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, id)
	}
	m.seen[id] = struct{}{}
	m.snap.Transactions = append(m.snap.Transactions, txn)
	m.snap.Period.Revision++
	return nil
}

// UpdatePartnerBalances overwrites the cached balances of matching partners.
func (m *MemoryStore) UpdatePartnerBalances(_ context.Context, orgID int64, partners []ledger.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if orgID != m.snap.Period.OrganizationID {
		return fmt.Errorf("%w: org %d", ErrPeriodNotFound, orgID)
	}
	byID := make(map[int64]ledger.Partner, len(partners))
	for _, p := range partners {
		byID[p.ID] = p
	}
	updated := make([]ledger.Partner, len(m.snap.Partners))
	for i, p := range m.snap.Partners {
		if next, ok := byID[p.ID]; ok {
			p.Balance = next.Balance
		}
		updated[i] = p
	}
	m.snap.Partners = updated
	return nil
}

func (m *MemoryStore) copy() Snapshot {
	s := m.snap
	s.Transactions = append([]posting.Transaction(nil), m.snap.Transactions...)
	s.Partners = append([]ledger.Partner(nil), m.snap.Partners...)
	s.Items = append([]ledger.Item(nil), m.snap.Items...)
	return s
}
