package accounting

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
)

// SnapshotFile is the portable JSON form of a Snapshot used by the CLI and seeding.
type SnapshotFile struct {
	Period       Period                   `json:"period"`
	Accounts     []coa.Account            `json:"accounts"`
	Mappings     []posting.AccountMapping `json:"mappings"`
	Transactions posting.Transactions     `json:"transactions"`
	Partners     []ledger.Partner         `json:"partners,omitempty"`
	Items        []ledger.Item            `json:"items,omitempty"`
}

// Snapshot validates the file contents and builds the in-memory snapshot.
func (f SnapshotFile) Snapshot() (Snapshot, error) {
	chart, err := coa.NewChart(f.Accounts)
	if err != nil {
		return Snapshot{}, err
	}
	controls, err := posting.ResolveControls(f.Mappings)
	if err != nil {
		return Snapshot{}, err
	}
	if err := controls.Validate(chart); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Period:       f.Period,
		Chart:        chart,
		Controls:     controls,
		Transactions: []posting.Transaction(f.Transactions),
		Partners:     f.Partners,
		Items:        f.Items,
	}, nil
}

// NewSnapshotFile flattens a snapshot for serialisation.
func NewSnapshotFile(s Snapshot) SnapshotFile {
	return SnapshotFile{
		Period:       s.Period,
		Accounts:     s.Chart.Accounts(),
		Mappings:     s.Controls.Mappings(),
		Transactions: posting.Transactions(s.Transactions),
		Partners:     s.Partners,
		Items:        s.Items,
	}
}

// ReadSnapshot decodes a snapshot file from r.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var f SnapshotFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Snapshot{}, fmt.Errorf("accounting: decode snapshot: %w", err)
	}
	return f.Snapshot()
}

// WriteSnapshot encodes s as indented JSON.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewSnapshotFile(s))
}
