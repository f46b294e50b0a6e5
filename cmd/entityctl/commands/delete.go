package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "delete ENTITY ID",
		Short: "Delete an entity",
		Long:  "Delete one entity by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, apiCtx, err := newFactory()
			if err != nil {
				return err
			}

			defer func() { _ = factory.Close() }()

			repo, err := factory.CreateChecked(args[0], source)
			if err != nil {
				return err
			}

			err = repo.Delete(cmd.Context(), args[1], apiCtx)
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", args[0], args[1])

			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "collection endpoint, e.g. /user/<id>/access-keys")

	return cmd
}
