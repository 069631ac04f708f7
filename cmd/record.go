package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// newRecordCmd creates the 'record' subcommand: inspect one committed
// record from the shell without the HTTP server running.
func newRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <entity-id>",
		Short: "Prints the committed record for one institution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := buildStore(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			rec, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, emblem.ErrNotFound) {
					return fmt.Errorf("no record for %q", args[0])
				}
				return fmt.Errorf("get record: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}
