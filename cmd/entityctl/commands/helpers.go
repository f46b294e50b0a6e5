package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/internal/fakeapi"
	"github.com/fivetwenty-io/entity-client/internal/logging"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
	"github.com/fivetwenty-io/entity-client/pkg/entityclient"
)

// Output formats.
const (
	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"

	defaultJSONIndent = 2
	maxCellWidth      = 40
)

// outputFormat returns the configured format. Without one, terminals get a
// table and pipes get JSON.
func outputFormat(w io.Writer) string {
	if format := viper.GetString("output"); format != "" {
		return format
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return OutputFormatTable
	}

	return OutputFormatJSON
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", strings.Repeat(" ", defaultJSONIndent))

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// writeYAML encodes v through its JSON form so entities keep their field
// names and nested shape.
func writeYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	var plain interface{}

	err = json.Unmarshal(data, &plain)
	if err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	defer func() { _ = encoder.Close() }()

	err = encoder.Encode(plain)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, v interface{}, table func() error) error {
	switch outputFormat(w) {
	case OutputFormatJSON:
		return writeJSON(w, v)
	case OutputFormatYAML:
		return writeYAML(w, v)
	default:
		return table()
	}
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(toAny(header)...)

	for _, row := range rows {
		err := table.Append(toAny(row)...)
		if err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}

// entityColumns lists the scalar fields of the entities, id first and the
// rest sorted.
func entityColumns(entities []*entity.Entity) []string {
	seen := map[string]bool{}

	for _, e := range entities {
		for field, value := range e.Fields() {
			if field == "id" || !isScalar(value) {
				continue
			}

			seen[field] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for field := range seen {
		columns = append(columns, field)
	}

	sort.Strings(columns)

	return append([]string{"id"}, columns...)
}

func isScalar(value interface{}) bool {
	switch value.(type) {
	case nil, string, bool, float64, int, int64:
		return true
	}

	return false
}

func entityRow(e *entity.Entity, columns []string) []string {
	row := make([]string, len(columns))

	for i, column := range columns {
		if column == "id" {
			row[i] = e.ID()

			continue
		}

		value, ok := e.Get(column)
		if !ok || value == nil {
			continue
		}

		row[i] = truncate(fmt.Sprint(value))
	}

	return row
}

func truncate(s string) string {
	if len(s) <= maxCellWidth {
		return s
	}

	return s[:maxCellWidth-3] + "..."
}

func renderEntities(w io.Writer, entities []*entity.Entity) error {
	columns := entityColumns(entities)

	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, entityRow(e, columns))
	}

	return renderTable(w, columns, rows)
}

// renderEntity prints one entity as a property table.
func renderEntity(w io.Writer, e *entity.Entity) error {
	rows := [][]string{{"id", e.ID()}}

	for _, field := range e.FieldNames() {
		if field == "id" {
			continue
		}

		value, _ := e.Get(field)

		var cell string

		switch v := value.(type) {
		case *entity.Entity:
			if v != nil {
				cell = v.Name() + " " + v.ID()
			}
		case *entity.EntityCollection:
			cell = fmt.Sprintf("%d %s", v.Len(), v.Entity)
		case nil:
		default:
			if isScalar(v) {
				cell = fmt.Sprint(v)
			} else {
				data, _ := json.Marshal(v)
				cell = string(data)
			}
		}

		rows = append(rows, []string{field, truncate(cell)})
	}

	return renderTable(w, []string{"Property", "Value"}, rows)
}

// parseSort parses "field[:ASC|DESC]".
func parseSort(value string, natural bool) (entity.Sorting, error) {
	field, order, found := strings.Cut(value, ":")
	if field == "" {
		return entity.Sorting{}, fmt.Errorf("%w: %q", constants.ErrInvalidSortFormat, value)
	}

	if !found {
		return entity.Sort(field, entity.SortAscending, natural), nil
	}

	switch strings.ToUpper(order) {
	case string(entity.SortAscending):
		return entity.Sort(field, entity.SortAscending, natural), nil
	case string(entity.SortDescending):
		return entity.Sort(field, entity.SortDescending, natural), nil
	}

	return entity.Sorting{}, fmt.Errorf("%w: %q", constants.ErrInvalidSortFormat, value)
}

// parseFilter parses "field=value" and "field=a|b" into equals filters.
func parseFilter(value string) (entity.Filter, error) {
	field, raw, found := strings.Cut(value, "=")
	if !found || field == "" {
		return entity.Filter{}, fmt.Errorf("%w: %q", constants.ErrInvalidFilter, value)
	}

	if strings.Contains(raw, "|") {
		return entity.EqualsAny(field, strings.Split(raw, "|")...), nil
	}

	return entity.Equals(field, raw), nil
}

// criteriaFlags are the search options shared by search and get.
type criteriaFlags struct {
	term         string
	limit        int
	page         int
	sorts        []string
	natural      bool
	filters      []string
	associations []string
	ids          []string
}

func (f *criteriaFlags) register(cmd *cobra.Command, search bool) {
	cmd.Flags().StringSliceVarP(&f.associations, "association", "A", nil, "load an association (dot path, repeatable)")

	if !search {
		return
	}

	cmd.Flags().StringVar(&f.term, "term", "", "full text search term")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "page size (0 = server default)")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().StringSliceVar(&f.sorts, "sort", nil, "sort by field[:ASC|DESC] (repeatable)")
	cmd.Flags().BoolVar(&f.natural, "natural", false, "use natural sorting")
	cmd.Flags().StringSliceVar(&f.filters, "filter", nil, "filter by field=value or field=a|b (repeatable)")
	cmd.Flags().StringSliceVar(&f.ids, "id", nil, "restrict to ids (repeatable)")
}

func (f *criteriaFlags) build() (*entity.Criteria, error) {
	criteria := entity.NewCriteria().SetPage(f.page).SetLimit(f.limit).SetTerm(f.term)

	if len(f.ids) > 0 {
		criteria.SetIDs(f.ids...)
	}

	for _, value := range f.sorts {
		sorting, err := parseSort(value, f.natural)
		if err != nil {
			return nil, err
		}

		criteria.AddSorting(sorting)
	}

	for _, value := range f.filters {
		filter, err := parseFilter(value)
		if err != nil {
			return nil, err
		}

		criteria.AddFilter(filter)
	}

	for _, path := range f.associations {
		criteria.AddAssociation(path)
	}

	err := criteria.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid criteria: %w", err)
	}

	return criteria, nil
}

// newFactory builds a repository factory and the call context from the
// loaded configuration.
func newFactory() (*entityclient.Factory, entity.APIContext, error) {
	config := loadConfig()

	if config.API == "" {
		return nil, entity.APIContext{}, constants.ErrNoAPIEndpointConfigured
	}

	if config.LanguageID == "" {
		return nil, entity.APIContext{}, constants.ErrNoLanguageConfigured
	}

	clientConfig := &entityclient.Config{
		Endpoint:     config.API,
		LanguageID:   config.LanguageID,
		CurrencyID:   config.CurrencyID,
		APIVersion:   config.APIVersion,
		VersionID:    config.VersionID,
		AccessToken:  config.Token,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RetryMax:     config.RetryMax,
		HTTPTimeout:  config.Timeout,
		NATSURL:      config.NATSURL,
		Schema:       fakeapi.ClientSchema(fakeapi.DefaultSchemas()),
	}

	if viper.GetBool("verbose") {
		sugar, err := logging.NewSugar(logging.EnvDevelopment)
		if err != nil {
			return nil, entity.APIContext{}, fmt.Errorf("failed to create logger: %w", err)
		}

		clientConfig.Logger = logging.NewAdapter(sugar)
		clientConfig.Debug = true
	}

	factory, err := entityclient.New(clientConfig)
	if err != nil {
		return nil, entity.APIContext{}, fmt.Errorf("failed to create client: %w", err)
	}

	return factory, factory.DefaultContext(), nil
}

// readDocument decodes a JSON or YAML file into v. "-" reads stdin.
func readDocument(path string, stdin io.Reader, v interface{}) error {
	if path == "" {
		return constants.ErrInputFileRequired
	}

	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		// #nosec G304 -- the path is supplied by the operator on the command line
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	// YAML is a superset of JSON.
	err = yaml.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}
