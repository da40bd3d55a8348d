package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run health checks against the configured store, cache and LLM settings",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	d.Health.RunOnce(cmd.Context())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, s := range d.Health.Statuses() {
		status := "ok"
		if !s.Healthy {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, status, s.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !d.Health.IsHealthy() {
		return errors.New("one or more health checks failed")
	}
	return nil
}
