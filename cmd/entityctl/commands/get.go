package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand() *cobra.Command {
	var (
		flags  criteriaFlags
		source string
	)

	cmd := &cobra.Command{
		Use:   "get ENTITY ID",
		Short: "Get an entity",
		Long:  "Fetch one entity by id, optionally with associations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := flags.build()
			if err != nil {
				return err
			}

			factory, apiCtx, err := newFactory()
			if err != nil {
				return err
			}

			defer func() { _ = factory.Close() }()

			repo, err := factory.CreateChecked(args[0], source)
			if err != nil {
				return err
			}

			e, err := repo.Get(cmd.Context(), args[1], apiCtx, criteria)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()

			return render(out, e, func() error {
				return renderEntity(out, e)
			})
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&source, "source", "", "collection endpoint, e.g. /user/<id>/access-keys")

	return cmd
}
