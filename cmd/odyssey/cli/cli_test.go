package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	fx "github.com/odyssey-erp/odyssey-gl/internal/accounting/testfixtures"
	"github.com/odyssey-erp/odyssey-gl/internal/close"
	"github.com/odyssey-erp/odyssey-gl/jobs"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

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

func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "march.json")
	require.NoError(t, writeSnapshotFile(path, march()))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestTrialBalanceCommand(t *testing.T) {
	path := writeSnapshot(t)

	out, _, err := run(t, "trial-balance", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, "Trial balance")
	require.Contains(t, out, "Accounts Receivable")
	require.Contains(t, out, "6,350.00")

	out, _, err = run(t, "tb", "-f", path, "--json")
	require.NoError(t, err)
	var tb reports.TrialBalance
	require.NoError(t, json.Unmarshal([]byte(out), &tb))
	require.Equal(t, "6350.00", tb.TotalDebit.StringFixed(2))
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func TestStatementCommands(t *testing.T) {
	path := writeSnapshot(t)

	out, _, err := run(t, "pl", "-f", path, "--json")
	require.NoError(t, err)
	var is reports.IncomeStatement
	require.NoError(t, json.Unmarshal([]byte(out), &is))
	require.Equal(t, "750.00", is.NetIncome.StringFixed(2))

	out, _, err = run(t, "balance-sheet", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, "Balance sheet as of 2024-03-31")
	require.Contains(t, out, "Liabilities and equity")

	out, _, err = run(t, "pl", "-f", path, "--to", "2024-03-10")
	require.NoError(t, err)
	require.Contains(t, out, "1,000.00")
	require.NotContains(t, out, "750.00")
}

func TestLedgerCommands(t *testing.T) {
	path := writeSnapshot(t)

	out, _, err := run(t, "ledger", "-f", path, "--account", "1112")
	require.NoError(t, err)
	require.Contains(t, out, "1112 Bank")
	require.Contains(t, out, "JV-1")
	require.Contains(t, out, "5,000.00 Dr")

	out, _, err = run(t, "partner", "-f", path, "--partner", "501", "--json")
	require.NoError(t, err)
	var pl reports.PartnerLedger
	require.NoError(t, json.Unmarshal([]byte(out), &pl))
	require.Equal(t, "1100.00", pl.Closing.StringFixed(2))
	require.Len(t, pl.Rows, 1)

	out, _, err = run(t, "day-book", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, "INV-1")
	require.Contains(t, out, "EXP-1")

	_, _, err = run(t, "ledger", "-f", path)
	require.Error(t, err)
}

func TestCommandInputErrors(t *testing.T) {
	_, _, err := run(t, "tb")
	require.ErrorContains(t, err, "--snapshot is required")

	path := writeSnapshot(t)
	_, _, err = run(t, "tb", "-f", path, "--from", "03/01/2024")
	require.ErrorContains(t, err, "invalid --from")

	_, _, err = run(t, "tb", "-f", path, "--tolerance", "abc")
	require.ErrorContains(t, err, "invalid --tolerance")

	_, _, err = run(t, "tb", "-f", filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRolloverCommandWritesNextSnapshot(t *testing.T) {
	path := writeSnapshot(t)
	next := filepath.Join(t.TempDir(), "april.json")

	out, _, err := run(t, "rollover", "-f", path,
		"--code", "2024-04", "--start", "2024-04-01", "--end", "2024-04-30",
		"--as-of", "2024-04-02", "--out", next)
	require.NoError(t, err)
	require.Contains(t, out, "closed 2024-03, opened 2024-04")
	require.Contains(t, out, "750.00")

	f, err := os.Open(next)
	require.NoError(t, err)
	defer f.Close()
	snap, err := accounting.ReadSnapshot(f)
	require.NoError(t, err)
	require.Equal(t, "2024-04", snap.Period.Code)
	require.Equal(t, accounting.PeriodStatusOpen, snap.Period.Status)
	require.Empty(t, snap.Transactions)
	re, ok := snap.Chart.Account(fx.RetainedEarnings)
	require.True(t, ok)
	require.Equal(t, "-750.00", re.Balance.StringFixed(2))
	rev, ok := snap.Chart.Account(fx.SalesRevenue)
	require.True(t, ok)
	require.True(t, rev.Balance.IsZero())
	require.Len(t, snap.Partners, 1)
	require.Equal(t, "1100.00", snap.Partners[0].Opening.StringFixed(2))
}

func TestRolloverCommandPreconditions(t *testing.T) {
	path := writeSnapshot(t)

	_, _, err := run(t, "rollover", "-f", path,
		"--code", "2024-04", "--start", "2024-04-01", "--end", "2024-04-30", "--as-of", "2024-03-15")
	require.ErrorIs(t, err, close.ErrPeriodNotEnded)

	_, _, err = run(t, "rollover", "-f", path,
		"--code", "2024-04", "--start", "2024-03-20", "--end", "2024-04-30", "--as-of", "2024-04-02")
	require.ErrorIs(t, err, close.ErrInvalidTarget)

	out, _, err := run(t, "rollover", "-f", path, "--preview")
	require.NoError(t, err)
	require.Contains(t, out, "Net income 750.00")
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestJobsCLITrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq}
	ctx := context.Background()

	info, err := c.Trigger(ctx, jobs.TaskGLIntegrity, jobs.ScopePayload{OrganizationIDs: []int64{7}}, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskGLIntegrity, info.Type)

	var scope jobs.ScopePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &scope))
	require.Equal(t, []int64{7}, scope.OrganizationIDs)

	_, err = c.Trigger(ctx, jobs.TaskGLRollover, jobs.ScopePayload{}, 0)
	require.ErrorContains(t, err, "unsupported job")
	require.Len(t, enq.tasks, 1)

	_, err = (&JobsCLI{}).Trigger(ctx, jobs.TaskGLIntegrity, jobs.ScopePayload{}, 0)
	require.Error(t, err)
}
