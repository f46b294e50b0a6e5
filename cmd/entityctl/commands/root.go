package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/entity-client/internal/constants"
)

// NewRootCommand creates the entityctl command tree.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "entityctl",
		Short: "Entity admin API CLI",
		Long: `A command-line interface for searching and writing entities through an
entity admin API.

Every request carries the configured language, currency and API version.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgFile string

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		initConfig(cfgFile)
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.entityctl/config.yml)")
	rootCmd.PersistentFlags().StringP("api", "a", "", "API endpoint URL")
	rootCmd.PersistentFlags().StringP("token", "t", "", "bearer token")
	rootCmd.PersistentFlags().String("language", "", "language id sent as "+constants.HeaderLanguageID)
	rootCmd.PersistentFlags().String("currency", "", "currency id sent as "+constants.HeaderCurrencyID)
	rootCmd.PersistentFlags().String("api-version", "", "API version sent as "+constants.HeaderAPIVersion)
	rootCmd.PersistentFlags().String("version-id", "", "live version id sent as "+constants.HeaderVersionID)
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format (table, json, yaml); defaults to table on a terminal")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log HTTP requests")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"api":         "api",
		"token":       "token",
		"language_id": "language",
		"currency_id": "currency",
		"api_version": "api-version",
		"version_id":  "version-id",
		"output":      "output",
		"verbose":     "verbose",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	rootCmd.AddCommand(NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewSearchCommand())
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewSaveCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewServeCommand())

	return rootCmd
}

func initConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in ~/.entityctl/config.yml
		viper.AddConfigPath(filepath.Join(home, ".entityctl"))
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("ENTITYCTL")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
