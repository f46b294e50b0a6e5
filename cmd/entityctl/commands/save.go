package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// NewSaveCommand creates the save command.
func NewSaveCommand() *cobra.Command {
	var (
		file   string
		sets   []string
		unsets []string
		source string
	)

	cmd := &cobra.Command{
		Use:   "save ENTITY [ID]",
		Short: "Create or update an entity",
		Long: `Create or update an entity. Without ID a new entity is created; the
payload may carry its id. With ID the stored entity is loaded and only the
changed fields are sent.

Examples:
  entityctl save locale --set code=en-GB --set name=English
  entityctl save user 0a1b... --set email=new@example.com
  entityctl save product --file product.yml`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]interface{}{}

			if file != "" {
				err := readDocument(file, cmd.InOrStdin(), &fields)
				if err != nil {
					return err
				}
			}

			for _, assignment := range sets {
				field, value, err := parseAssignment(assignment)
				if err != nil {
					return err
				}

				fields[field] = value
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

			var target *entity.Entity

			if len(args) == 2 {
				target, err = repo.Get(cmd.Context(), args[1], apiCtx, nil)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", args[0], err)
				}
			} else {
				id, _ := fields["id"].(string)
				target = repo.Create(apiCtx, id)
			}

			delete(fields, "id")

			for field, value := range fields {
				target.Set(field, value)
			}

			for _, field := range unsets {
				target.Unset(field)
			}

			saved, err := repo.Save(cmd.Context(), target, apiCtx)
			if err != nil {
				return describeSaveError(args[0], err)
			}

			out := cmd.OutOrStdout()

			return render(out, saved, func() error {
				return renderEntity(out, saved)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or YAML payload file (- for stdin)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "set field=value, the value is parsed as JSON when possible (repeatable)")
	cmd.Flags().StringSliceVar(&unsets, "unset", nil, "remove a field (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "collection endpoint, e.g. /user/<id>/access-keys")

	return cmd
}

// parseAssignment splits "field=value". Values that are valid JSON are
// decoded, anything else is kept as a string.
func parseAssignment(assignment string) (string, interface{}, error) {
	field, raw, found := strings.Cut(assignment, "=")
	if !found || field == "" {
		return "", nil, fmt.Errorf("%w: %q", constants.ErrInvalidAssignment, assignment)
	}

	var value interface{}

	err := json.Unmarshal([]byte(raw), &value)
	if err != nil {
		return field, raw, nil
	}

	return field, value, nil
}

// describeSaveError lists field errors one per line.
func describeSaveError(entityName string, err error) error {
	var (
		validation *entity.ValidationFailure
		conflict   *entity.ConflictFailure
	)

	switch {
	case errors.As(err, &validation):
		lines := make([]string, 0, len(validation.Errors))
		for _, fe := range validation.Errors {
			lines = append(lines, "  "+fe.String())
		}

		return fmt.Errorf("failed to save %s:\n%s\n%w", entityName, strings.Join(lines, "\n"), err)
	case errors.As(err, &conflict):
		return fmt.Errorf("failed to save %s, %s must be unique: %w", entityName, conflict.Field, err)
	}

	return fmt.Errorf("failed to save %s: %w", entityName, err)
}
