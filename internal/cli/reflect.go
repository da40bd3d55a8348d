package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func init() {
	reflectCmd.Flags().StringVarP(&payloadFile, "file", "f", "-", "Mood payload JSON file (- for stdin)")
	moodCmd.Flags().StringVarP(&payloadFile, "file", "f", "-", "Mood payload JSON file (- for stdin)")
	moodCmd.Flags().StringVar(&moodAt, "at", "", "Submission time, RFC 3339 (default now; not in the future, not before the last mood day)")
	rootCmd.AddCommand(reflectCmd, moodCmd)
}

var (
	payloadFile string
	moodAt      string
)

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Generate a reflection for a mood payload without recording it",
	Args:  cobra.NoArgs,
	RunE:  runReflect,
}

var moodCmd = &cobra.Command{
	Use:   "mood <user-id>",
	Short: "Submit a mood for a user and print the reflection and game outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runMood,
}

func runReflect(cmd *cobra.Command, args []string) error {
	p, err := readPayload(payloadFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	a, err := d.Generator.Generate(cmd.Context(), p)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), a)
}

func runMood(cmd *cobra.Command, args []string) error {
	p, err := readPayload(payloadFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	var at time.Time
	if moodAt != "" {
		if at, err = time.Parse(time.RFC3339, moodAt); err != nil {
			return err
		}
	}

	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sub, err := d.Moods.Submit(cmd.Context(), args[0], p, at)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), sub)
}
