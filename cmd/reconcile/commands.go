package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/services/reconciliation"
)

func autoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Auto-match every unambiguous transaction of a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := companyFlag(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.recon.AutoReconcile(cmd.Context(), companyID)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(res)
			}
			s := res.Summary
			fmt.Fprintf(a.out, "Matched %d of %d transactions (%s)\n", s.Matched, s.Total, s.MatchedAmount.StringFixed(2))
			fmt.Fprintf(a.out, "  Ambiguous: %d\n  Unmatched: %d\n", s.Ambiguous, s.Unmatched)
			if s.Conflicts > 0 {
				fmt.Fprintf(a.out, "  Conflicts: %d\n", s.Conflicts)
			}
			return nil
		},
	}
}

func manualCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Match one transaction to one payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := companyFlag(cmd)
			if err != nil {
				return err
			}
			txID, err := uuidFlag(cmd, "transaction")
			if err != nil {
				return err
			}
			paymentID, err := uuidFlag(cmd, "payment")
			if err != nil {
				return err
			}
			user, _ := cmd.Flags().GetString("user")
			note, _ := cmd.Flags().GetString("note")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.recon.ManualReconcile(cmd.Context(), reconciliation.ManualRequest{
				CompanyID:     companyID,
				TransactionID: txID,
				PaymentID:     paymentID,
				UserID:        user,
				Note:          note,
			})
			if err != nil {
				return err
			}
			return a.report(res, "matched")
		},
	}
	cmd.Flags().String("transaction", "", "Bank transaction ID")
	cmd.Flags().String("payment", "", "Payment ID")
	cmd.Flags().String("note", "", "Note stored with the match")
	return cmd
}

func undoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo the match of a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := companyFlag(cmd)
			if err != nil {
				return err
			}
			txID, err := uuidFlag(cmd, "transaction")
			if err != nil {
				return err
			}
			user, _ := cmd.Flags().GetString("user")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.recon.UndoReconciliation(cmd.Context(), companyID, txID, user)
			if err != nil {
				return err
			}
			return a.report(res, "unmatched")
		},
	}
	cmd.Flags().String("transaction", "", "Bank transaction ID")
	return cmd
}

func (a *app) report(res reconciliation.Result, verb string) error {
	if a.asJSON {
		if err := a.printJSON(res); err != nil {
			return err
		}
	} else if res.Success {
		fmt.Fprintf(a.out, "Transaction %s %s\n", res.Transaction.ID, verb)
	}
	return resultErr(res)
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import bank statements, payments or a bank feed",
	}

	csvCmd := func(use, short string, kind string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [file]",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				companyID, err := companyFlag(cmd)
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				a, err := newApp(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				run := a.importer.ImportTransactions
				if kind == models.ImportKindPayments {
					run = a.importer.ImportPayments
				}
				batch, err := run(cmd.Context(), companyID, filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				return a.printBatch(batch)
			},
		}
	}
	cmd.AddCommand(csvCmd("transactions", "Import a bank statement CSV (date,label,amount,reference)", models.ImportKindTransactions))
	cmd.AddCommand(csvCmd("payments", "Import expected payments CSV (contract_ref,amount,due_date,status)", models.ImportKindPayments))

	feedCmd := &cobra.Command{
		Use:   "bankfeed",
		Short: "Pull booked transactions of a bank account",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := companyFlag(cmd)
			if err != nil {
				return err
			}
			account, _ := cmd.Flags().GetString("account")
			if account == "" {
				return fmt.Errorf("--account is required")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.importer.ImportBankFeed(cmd.Context(), companyID, account)
			if err != nil {
				return err
			}
			return a.printBatch(batch)
		},
	}
	feedCmd.Flags().String("account", "", "Bank account ID at the feed provider")
	cmd.AddCommand(feedCmd)

	return cmd
}

func (a *app) printBatch(batch *models.ImportBatch) error {
	if a.asJSON {
		return a.printJSON(batch)
	}
	fmt.Fprintf(a.out, "Batch %s: %s\n", batch.ID, batch.Status)
	fmt.Fprintf(a.out, "  Rows:     %d\n  Imported: %d\n  Skipped:  %d\n", batch.TotalRows, batch.ImportedCount, batch.SkippedCount)
	return nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show reconciliation progress of a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := companyFlag(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.transactions.Stats(cmd.Context(), companyID)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(s)
			}
			fmt.Fprintf(a.out, "  %-10s %6d  %s\n", "Total:", s.Total, s.TotalAmount.StringFixed(2))
			fmt.Fprintf(a.out, "  %-10s %6d  %s  (auto %d, manual %d)\n", "Matched:", s.MatchedCount, s.MatchedSum.StringFixed(2), s.AutoCount, s.ManualCount)
			fmt.Fprintf(a.out, "  %-10s %6d  %s\n", "Unmatched:", s.UnmatchedCount, s.UnmatchedSum.StringFixed(2))
			fmt.Fprintf(a.out, "  %-10s %6d  %s\n", "Ignored:", s.IgnoredCount, s.IgnoredSum.StringFixed(2))
			return nil
		},
	}
}
