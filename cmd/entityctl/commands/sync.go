package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// syncDocumentItem is one entry of a sync input file.
type syncDocumentItem struct {
	Entity  string                 `json:"entity"  yaml:"entity"`
	Action  string                 `json:"action"  yaml:"action"`
	ID      string                 `json:"id"      yaml:"id"`
	Payload map[string]interface{} `json:"payload" yaml:"payload"`
}

type syncResultOutput struct {
	Index   int            `json:"index"           yaml:"index"`
	Entity  string         `json:"entity"          yaml:"entity"`
	Action  string         `json:"action"          yaml:"action"`
	ID      string         `json:"id"              yaml:"id"`
	Success bool           `json:"success"         yaml:"success"`
	Skipped bool           `json:"skipped"         yaml:"skipped"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
	Data    *entity.Entity `json:"data,omitempty"  yaml:"data,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand() *cobra.Command {
	var (
		file          string
		defaultEntity string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upsert and delete entities in one request",
		Long: `Send a batch of upserts and deletes in a single round trip. Items
succeed or fail independently.

The input is a JSON or YAML list:
  - entity: locale
    action: upsert
    payload: {id: 0a1b..., code: en-GB}
  - entity: locale
    action: delete
    id: 2c3d...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []syncDocumentItem

			err := readDocument(file, cmd.InOrStdin(), &items)
			if err != nil {
				return err
			}

			operations := syncOperations(items)

			repoEntity := defaultEntity
			if repoEntity == "" && len(items) > 0 {
				repoEntity = items[0].Entity
			}

			if repoEntity == "" {
				return constants.ErrEntityNameRequired
			}

			factory, apiCtx, err := newFactory()
			if err != nil {
				return err
			}

			defer func() { _ = factory.Close() }()

			repo, err := factory.CreateChecked(repoEntity)
			if err != nil {
				return err
			}

			results, err := repo.SyncOperations(cmd.Context(), operations, apiCtx)
			if err != nil {
				return fmt.Errorf("failed to sync: %w", err)
			}

			out := cmd.OutOrStdout()
			output := syncOutput(results)

			err = render(out, output, func() error {
				return renderSyncTable(cmd, output, entity.Summarize(results))
			})
			if err != nil {
				return err
			}

			if entity.Summarize(results).Failed > 0 {
				return constants.ErrSyncFailures
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or YAML operation list (- for stdin)")
	cmd.Flags().StringVar(&defaultEntity, "entity", "", "entity name for items that omit it")

	return cmd
}

func syncOperations(items []syncDocumentItem) []entity.SyncOperation {
	operations := make([]entity.SyncOperation, 0, len(items))

	for _, item := range items {
		id := item.ID
		if id == "" {
			id, _ = item.Payload["id"].(string)
		}

		op := entity.SyncOperation{
			Action:     item.Action,
			EntityName: item.Entity,
			ID:         id,
			Payload:    item.Payload,
		}

		if item.Action == entity.SyncActionUpsert && id != "" && item.Payload != nil {
			op.Payload["id"] = id
		}

		operations = append(operations, op)
	}

	return operations
}

func syncOutput(results []entity.SyncResult) []syncResultOutput {
	output := make([]syncResultOutput, 0, len(results))

	for _, r := range results {
		item := syncResultOutput{
			Index:   r.Index,
			Entity:  r.Entity,
			Action:  r.Action,
			ID:      r.ID,
			Success: r.Success,
			Skipped: r.Skipped,
			Data:    r.Data,
		}

		if r.Error != nil {
			item.Error = r.Error.Error()
		}

		output = append(output, item)
	}

	return output
}

func renderSyncTable(cmd *cobra.Command, output []syncResultOutput, summary entity.SyncSummary) error {
	rows := make([][]string, 0, len(output))
	title := cases.Title(language.English)

	for _, item := range output {
		status := "ok"

		switch {
		case !item.Success:
			status = "failed"
		case item.Skipped:
			status = "skipped"
		}

		rows = append(rows, []string{
			fmt.Sprint(item.Index), item.Entity, title.String(item.Action), item.ID, status, truncate(item.Error),
		})
	}

	err := renderTable(cmd.OutOrStdout(), []string{"#", "Entity", "Action", "ID", "Status", "Error"}, rows)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed, %d skipped\n",
		summary.Succeeded, summary.Failed, summary.Skipped)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}
