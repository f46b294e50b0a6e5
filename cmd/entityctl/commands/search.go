package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// NewSearchCommand creates the search command.
func NewSearchCommand() *cobra.Command {
	var (
		flags   criteriaFlags
		source  string
		idsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search ENTITY",
		Short: "Search entities",
		Long: `Search entities by term, filters and sorting.

Examples:
  entityctl search user --term admin --sort username:ASC --limit 10
  entityctl search product --sort name --natural --filter active=true
  entityctl search user_access_key --source /user/<id>/access-keys`,
		Args: cobra.ExactArgs(1),
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

			out := cmd.OutOrStdout()

			if idsOnly {
				result, err := repo.SearchIDs(cmd.Context(), criteria, apiCtx)
				if err != nil {
					return fmt.Errorf("failed to search %s ids: %w", args[0], err)
				}

				return render(out, result, func() error {
					rows := make([][]string, 0, len(result.IDs))
					for _, id := range result.IDs {
						rows = append(rows, []string{id})
					}

					err := renderTable(out, []string{"id"}, rows)
					if err != nil {
						return err
					}

					return printTotal(cmd, len(result.IDs), result.Total)
				})
			}

			collection, err := repo.Search(cmd.Context(), criteria, apiCtx)
			if err != nil {
				return fmt.Errorf("failed to search %s: %w", args[0], err)
			}

			return render(out, searchOutput(collection), func() error {
				err := renderEntities(out, collection.Items())
				if err != nil {
					return err
				}

				return printTotal(cmd, collection.Len(), collection.Total)
			})
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&source, "source", "", "collection endpoint, e.g. /user/<id>/access-keys")
	cmd.Flags().BoolVar(&idsOnly, "ids-only", false, "return ids only")

	return cmd
}

type searchResult struct {
	Data         *entity.EntityCollection `json:"data"`
	Total        int                      `json:"total"`
	Aggregations map[string]interface{}   `json:"aggregations,omitempty"`
}

func searchOutput(collection *entity.EntityCollection) searchResult {
	return searchResult{
		Data:         collection,
		Total:        collection.Total,
		Aggregations: collection.Aggregations,
	}
}

func printTotal(cmd *cobra.Command, shown, total int) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d\n", shown, total)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}
