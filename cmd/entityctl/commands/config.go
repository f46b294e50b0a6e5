package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/entity-client/internal/constants"
)

// Config represents the CLI configuration.
type Config struct {
	API          string        `json:"api,omitempty"           yaml:"api,omitempty"`
	Token        string        `json:"token,omitempty"         yaml:"token,omitempty"`
	ClientID     string        `json:"client_id,omitempty"     yaml:"client_id,omitempty"`
	ClientSecret string        `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	LanguageID   string        `json:"language_id,omitempty"   yaml:"language_id,omitempty"`
	CurrencyID   string        `json:"currency_id,omitempty"   yaml:"currency_id,omitempty"`
	APIVersion   string        `json:"api_version,omitempty"   yaml:"api_version,omitempty"`
	VersionID    string        `json:"version_id,omitempty"    yaml:"version_id,omitempty"`
	Output       string        `json:"output,omitempty"        yaml:"output,omitempty"`
	NATSURL      string        `json:"nats_url,omitempty"      yaml:"nats_url,omitempty"`
	RetryMax     int           `json:"retry_max,omitempty"     yaml:"retry_max,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"       yaml:"timeout,omitempty"`
}

const masked = "***"

// configKeys lists the keys accepted by config set and unset.
var configKeys = []string{
	"api", "token", "client_id", "client_secret", "language_id", "currency_id", "api_version",
	"version_id", "output", "nats_url", "retry_max", "timeout",
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Show and change the entityctl configuration stored in $HOME/.entityctl/config.yml",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration. The token is masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.Token != "" {
				config.Token = masked
			}

			if config.ClientSecret != "" {
				config.ClientSecret = masked
			}

			out := cmd.OutOrStdout()

			return render(out, config, func() error {
				return displayConfigTable(out, config)
			})
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a configuration value and persist it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			err := setConfigValue(config, args[0], args[1])
			if err != nil {
				return err
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])

			return nil
		},
	}
}

func newConfigUnsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Long:  "Remove a configuration value and persist the change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			err := setConfigValue(config, args[0], "")
			if err != nil {
				return err
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])

			return nil
		},
	}
}

func loadConfig() *Config {
	config := &Config{
		API:          viper.GetString("api"),
		Token:        viper.GetString("token"),
		ClientID:     viper.GetString("client_id"),
		ClientSecret: viper.GetString("client_secret"),
		LanguageID:   viper.GetString("language_id"),
		CurrencyID:   viper.GetString("currency_id"),
		APIVersion:   viper.GetString("api_version"),
		VersionID:    viper.GetString("version_id"),
		Output:       viper.GetString("output"),
		NATSURL:      viper.GetString("nats_url"),
		RetryMax:     viper.GetInt("retry_max"),
		Timeout:      viper.GetDuration("timeout"),
	}

	if config.APIVersion == "" {
		config.APIVersion = constants.DefaultAPIVersion
	}

	return config
}

func setConfigValue(config *Config, key, value string) error {
	switch key {
	case "api":
		config.API = value
	case "token":
		config.Token = value
	case "client_id":
		config.ClientID = value
	case "client_secret":
		config.ClientSecret = value
	case "language_id":
		config.LanguageID = value
	case "currency_id":
		config.CurrencyID = value
	case "api_version":
		config.APIVersion = value
	case "version_id":
		config.VersionID = value
	case "output":
		config.Output = value
	case "nats_url":
		config.NATSURL = value
	case "retry_max":
		if value == "" {
			config.RetryMax = 0

			break
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retry_max %q: %w", value, err)
		}

		config.RetryMax = n
	case "timeout":
		if value == "" {
			config.Timeout = 0

			break
		}

		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}

		config.Timeout = d
	default:
		return fmt.Errorf("%w: %s (known keys: %v)", constants.ErrUnknownConfigKey, key, configKeys)
	}

	viper.Set(key, value)

	return nil
}

// configFilePath returns the file in use or $HOME/.entityctl/config.yml.
func configFilePath() (string, error) {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".entityctl", "config.yml"), nil
}

func saveConfigStruct(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	persisted := *config
	if persisted.APIVersion == constants.DefaultAPIVersion {
		persisted.APIVersion = ""
	}

	data, err := yaml.Marshal(&persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func displayConfigTable(w io.Writer, config *Config) error {
	timeout := ""
	if config.Timeout > 0 {
		timeout = config.Timeout.String()
	}

	return renderTable(w, []string{"Setting", "Value"}, [][]string{
		{"api", config.API},
		{"token", config.Token},
		{"client_id", config.ClientID},
		{"client_secret", config.ClientSecret},
		{"language_id", config.LanguageID},
		{"currency_id", config.CurrencyID},
		{"api_version", config.APIVersion},
		{"version_id", config.VersionID},
		{"output", config.Output},
		{"nats_url", config.NATSURL},
		{"retry_max", strconv.Itoa(config.RetryMax)},
		{"timeout", timeout},
	})
}
