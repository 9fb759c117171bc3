package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Draft a reply for the newest unanswered event email",
		Long: `Pick the newest event email that has no reply and no notification yet,
draft a reply, record it as a pending action and text the operator the
approval code. Run sync first to refresh the cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.canSuggest() {
				return fmt.Errorf("suggestions need approval.operator_number and approval.signal_account")
			}

			out, err := a.step.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("suggestion failed: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	return cmd
}
