package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/internal/fakeapi"
	"github.com/fivetwenty-io/entity-client/internal/logging"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		addr string
		env  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory admin API",
		Long: `Run an in-memory admin API for local development and tests. It serves
the user, locale, user_access_key, product, rule and rule_condition entities,
plus /metrics and /_info/health.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sugar, err := logging.NewSugar(env)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			defer func() { _ = sugar.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := fakeapi.NewServer(
				fakeapi.NewStore(fakeapi.DefaultSchemas()),
				fakeapi.WithLogger(sugar),
			)

			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", constants.DefaultServeAddr, "listen address")
	cmd.Flags().StringVar(&env, "env", logging.EnvDevelopment, "logging environment (dev, prod)")

	return cmd
}
