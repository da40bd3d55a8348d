package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	ledgerCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 20, "Number of entries to show")
	rootCmd.AddCommand(gameCmd, ledgerCmd, verifyCmd)
}

var ledgerLimit int

var gameCmd = &cobra.Command{
	Use:   "game <user-id>",
	Short: "Show a user's streak, MoodCoins and unlocks",
	Args:  cobra.ExactArgs(1),
	RunE:  runGame,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger <user-id>",
	Short: "Show a user's MoodCoin ledger, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedger,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [user-id...]",
	Short: "Check that the ledger balances and matches stored MoodCoins",
	RunE:  runVerify,
}

func runGame(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	st, err := d.Game.State(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), st)
}

func runLedger(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	balance, err := d.Credit.Balance(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	entries, err := d.Credit.History(cmd.Context(), args[0], ledgerLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Balance: %d MoodCoins\n\n", balance)
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ledger entries.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tREASON\tAMOUNT\tBALANCE\tREFERENCE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t+%d\t%d\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04"),
			e.Reason,
			e.Amount,
			e.Balance,
			e.Reference,
		)
	}
	return w.Flush()
}

func runVerify(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Credit.Verify(cmd.Context(), args...); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Ledger OK")
	return nil
}
