package close

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the in-process rollover state of one organization.
type State struct {
	Status    RolloverStatus `json:"status"`
	RunID     uuid.UUID      `json:"run_id,omitempty"`
	Cause     string         `json:"cause,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Machine tracks READY -> PROCESSING -> COMPLETE per organization. A failed
// run passes through FAILED and lands back on READY with its cause kept.
type Machine struct {
	mu     sync.Mutex
	states map[int64]State
	now    func() time.Time
}

// NewMachine constructs an empty state machine; unknown organizations are READY.
func NewMachine() *Machine {
	return &Machine{states: make(map[int64]State), now: time.Now}
}

// State returns the organization's current state.
func (m *Machine) State(orgID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[orgID]
	if !ok {
		return State{Status: StatusReady}
	}
	return st
}

// Begin moves the organization into PROCESSING. A completed organization may
// begin again since its next rollover concerns the newly opened period.
func (m *Machine) Begin(orgID int64, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[orgID]
	if st.Status == StatusProcessing {
		return ErrRolloverInProgress
	}
	m.states[orgID] = State{Status: StatusProcessing, RunID: runID, UpdatedAt: m.now()}
	return nil
}

// Abort returns a PROCESSING organization to READY without recording a failure.
func (m *Machine) Abort(orgID int64, runID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.states[orgID]; st.Status == StatusProcessing && st.RunID == runID {
		m.states[orgID] = State{Status: StatusReady, UpdatedAt: m.now()}
	}
}

// Complete marks the run finished.
func (m *Machine) Complete(orgID int64, runID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[orgID] = State{Status: StatusComplete, RunID: runID, UpdatedAt: m.now()}
}

// Fail records cause and returns the organization to READY.
func (m *Machine) Fail(orgID int64, runID uuid.UUID, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	m.states[orgID] = State{Status: StatusReady, RunID: runID, Cause: msg, UpdatedAt: m.now()}
}

// Processing reports whether a rollover is running for orgID in this process.
func (m *Machine) Processing(orgID int64) bool {
	return m.State(orgID).Status == StatusProcessing
}
