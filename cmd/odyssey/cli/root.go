package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// options are the flags shared by every snapshot command.
type options struct {
	snapshot  string
	period    string
	from      string
	to        string
	json      bool
	lang      string
	strict    bool
	tolerance string
	verbose   bool
}

// NewRootCommand creates the glctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "glctl",
		Short: "General ledger reports and period rollover over snapshot files",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.snapshot, "snapshot", "f", "", "snapshot file (- for stdin)")
	flags.StringVar(&opts.period, "period", "", "period code (defaults to the snapshot period)")
	flags.StringVar(&opts.from, "from", "", "range start, YYYY-MM-DD")
	flags.StringVar(&opts.to, "to", "", "range end, YYYY-MM-DD")
	flags.BoolVar(&opts.json, "json", false, "print JSON instead of tables")
	flags.StringVar(&opts.lang, "lang", "en", "BCP 47 tag for amount formatting")
	flags.BoolVar(&opts.strict, "strict", true, "fail when a transaction cannot be posted")
	flags.StringVar(&opts.tolerance, "tolerance", "0.01", "balance tolerance")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newTrialBalanceCommand(opts),
		newIncomeStatementCommand(opts),
		newBalanceSheetCommand(opts),
		newLedgerCommand(opts),
		newPartnerCommand(opts),
		newDayBookCommand(opts),
		newRolloverCommand(opts),
		newImportCommand(opts),
		newJobsCommand(),
	)
	return root
}

func (o *options) logger(w io.Writer) *slog.Logger {
	if !o.verbose {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func (o *options) language() (language.Tag, error) {
	tag, err := language.Parse(o.lang)
	if err != nil {
		return language.Und, fmt.Errorf("invalid --lang %q: %w", o.lang, err)
	}
	return tag, nil
}

func (o *options) serviceOptions() (accounting.Options, error) {
	tol, err := decimal.NewFromString(o.tolerance)
	if err != nil {
		return accounting.Options{}, fmt.Errorf("invalid --tolerance %q: %w", o.tolerance, err)
	}
	return accounting.Options{Tolerance: tol, Strict: o.strict}, nil
}

func (o *options) readSnapshot(stdin io.Reader) (accounting.Snapshot, error) {
	if o.snapshot == "" {
		return accounting.Snapshot{}, fmt.Errorf("--snapshot is required")
	}
	if o.snapshot == "-" {
		return accounting.ReadSnapshot(stdin)
	}
	f, err := os.Open(o.snapshot)
	if err != nil {
		return accounting.Snapshot{}, err
	}
	defer f.Close()
	return accounting.ReadSnapshot(f)
}

func (o *options) query(snap accounting.Snapshot) (accounting.Query, error) {
	q := accounting.Query{OrganizationID: snap.Period.OrganizationID, PeriodCode: o.period}
	var err error
	if q.From, err = parseDay("--from", o.from); err != nil {
		return q, err
	}
	if q.To, err = parseDay("--to", o.to); err != nil {
		return q, err
	}
	return q, nil
}

func parseDay(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(acctshared.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", flag, v)
	}
	return t, nil
}

// session loads the snapshot and builds an in-memory report service over it.
type session struct {
	store   *accounting.MemoryStore
	service *accounting.Service
	query   accounting.Query
	tag     language.Tag
}

func (o *options) open(cmd *cobra.Command) (session, error) {
	snap, err := o.readSnapshot(cmd.InOrStdin())
	if err != nil {
		return session{}, err
	}
	svcOpts, err := o.serviceOptions()
	if err != nil {
		return session{}, err
	}
	tag, err := o.language()
	if err != nil {
		return session{}, err
	}
	q, err := o.query(snap)
	if err != nil {
		return session{}, err
	}
	store := accounting.NewMemoryStore(snap)
	return session{
		store:   store,
		service: accounting.NewService(store, nil, nil, svcOpts, o.logger(cmd.ErrOrStderr())),
		query:   q,
		tag:     tag,
	}, nil
}
