package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	referralCmd.AddCommand(referralCreateCmd, referralAcceptCmd)
	rootCmd.AddCommand(referralCmd)
}

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Create and accept referrals",
}

var referralCreateCmd = &cobra.Command{
	Use:   "create <inviter-id> <invitee-id>",
	Short: "Record that one user invited another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		ref, err := d.Game.CreateReferral(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ref)
	},
}

var referralAcceptCmd = &cobra.Command{
	Use:   "accept <referral-id>",
	Short: "Accept a referral and credit the inviter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		ref, out, err := d.Game.AcceptReferral(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"referral": ref,
			"inviter":  out,
		})
	},
}
