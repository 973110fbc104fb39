package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

func newTrialBalanceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "trial-balance",
		Aliases: []string{"tb"},
		Short:   "Print the trial balance",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			tb, err := s.service.TrialBalance(cmd.Context(), s.query)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), tb, func(w io.Writer) error { return renderTrialBalance(w, s.tag, tb) })
		},
	}
}

func newIncomeStatementCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "income-statement",
		Aliases: []string{"pl"},
		Short:   "Print the income statement",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			is, err := s.service.IncomeStatement(cmd.Context(), s.query)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), is, func(w io.Writer) error { return renderIncomeStatement(w, s.tag, is) })
		},
	}
}

func newBalanceSheetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "balance-sheet",
		Aliases: []string{"bs"},
		Short:   "Print the balance sheet",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			bs, err := s.service.BalanceSheet(cmd.Context(), s.query)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), bs, func(w io.Writer) error { return renderBalanceSheet(w, s.tag, bs) })
		},
	}
}

func newLedgerCommand(opts *options) *cobra.Command {
	var accountID int64
	cmd := &cobra.Command{
		Use:     "ledger",
		Aliases: []string{"gl"},
		Short:   "Print the general ledger of an account",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			gl, err := s.service.GeneralLedger(cmd.Context(), s.query, accountID)
			if err != nil {
				return err
			}
			title := gl.Account.Code + " " + gl.Account.Name
			return opts.emit(cmd.OutOrStdout(), gl, func(w io.Writer) error {
				return renderLedger(w, s.tag, title, gl.Opening, gl.Rows, gl.TotalDebit, gl.TotalCredit, gl.Closing)
			})
		},
	}
	cmd.Flags().Int64Var(&accountID, "account", 0, "account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newPartnerCommand(opts *options) *cobra.Command {
	var partnerID int64
	cmd := &cobra.Command{
		Use:   "partner",
		Short: "Print the subsidiary ledger of a customer or vendor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			pl, err := s.service.PartnerLedger(cmd.Context(), s.query, partnerID)
			if err != nil {
				return err
			}
			title := pl.Partner.Code + " " + pl.Partner.Name
			return opts.emit(cmd.OutOrStdout(), pl, func(w io.Writer) error {
				return renderLedger(w, s.tag, title, pl.Opening, pl.Rows, pl.TotalDebit, pl.TotalCredit, pl.Closing)
			})
		},
	}
	cmd.Flags().Int64Var(&partnerID, "partner", 0, "partner id")
	_ = cmd.MarkFlagRequired("partner")
	return cmd
}

func newDayBookCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "day-book",
		Short: "List every transaction of the range as entered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			db, err := s.service.DayBook(cmd.Context(), s.query)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), db, func(w io.Writer) error { return renderDayBook(w, s.tag, db) })
		},
	}
}

func (o *options) emit(w io.Writer, v any, table func(io.Writer) error) error {
	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return table(w)
}
