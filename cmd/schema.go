package cmd

import (
	"github.com/spf13/cobra"
)

// newSchemaCmd creates the 'init-schema' subcommand: one-time bootstrap of
// the graph's uniqueness constraints and indexes. Idempotent; safe to rerun.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Creates the graph constraints and indexes",

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Store().EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			appInstance.Logger().Info("graph schema ensured")
			return nil
		},
	}
}
