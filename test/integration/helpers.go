//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/entity-client/internal/constants"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	APIEndpoint string
	LanguageID  string
	Token       string
	BinaryPath  string
	Verbose     bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	languageID := os.Getenv("ENTITY_LANGUAGE_ID")
	if languageID == "" {
		languageID = constants.DefaultLanguageID
	}

	return &TestConfig{
		APIEndpoint: os.Getenv("ENTITY_API_URL"),
		LanguageID:  languageID,
		Token:       os.Getenv("ENTITY_API_TOKEN"),
		BinaryPath:  getBinaryPath(),
		Verbose:     os.Getenv("ENTITYCTL_VERBOSE") == "true",
	}
}

// getBinaryPath determines the path to the entityctl binary
func getBinaryPath() string {
	if path := os.Getenv("ENTITYCTL_BINARY_PATH"); path != "" {
		return path
	}

	candidates := []string{
		"../../entityctl",
		"./entityctl",
		"../entityctl",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "entityctl"
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.APIEndpoint == "" {
		t.Skip("ENTITY_API_URL not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.BinaryPath); err != nil {
		t.Skipf("entityctl binary not found at %s, skipping integration test", config.BinaryPath)
	}
}

// CommandRunner runs entityctl against the configured API with JSON output.
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{
		config: config,
		t:      t,
	}
}

func (runner *CommandRunner) args(args []string) []string {
	global := []string{
		"--api", runner.config.APIEndpoint,
		"--language", runner.config.LanguageID,
		"--output", "json",
	}

	if runner.config.Token != "" {
		global = append(global, "--token", runner.config.Token)
	}

	return append(args, global...)
}

// Run executes an entityctl command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	return runner.RunWithInput("", args...)
}

// RunWithInput executes an entityctl command with stdin input
func (runner *CommandRunner) RunWithInput(input string, args ...string) (stdout, stderr string, err error) {
	full := runner.args(args)

	cmd := exec.Command(runner.config.BinaryPath, full...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(input)

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.BinaryPath, strings.Join(full, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// RunJSON executes a command that must succeed and decodes its JSON output.
func (runner *CommandRunner) RunJSON(v interface{}, args ...string) {
	runner.t.Helper()

	stdout, stderr, err := runner.Run(args...)
	require.NoError(runner.t, err, "entityctl %s failed: %s", strings.Join(args, " "), stderr)
	require.NoError(runner.t, json.Unmarshal([]byte(stdout), v), "output is not JSON: %s", stdout)
}

// GenerateTestName creates a unique test resource name
func GenerateTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// CleanupEntity attempts to delete a test entity
func (runner *CommandRunner) CleanupEntity(entityName, id string) {
	stdout, stderr, err := runner.Run("delete", entityName, id)
	if err != nil && runner.config.Verbose {
		runner.t.Logf("Cleanup warning for %s %s: %s\nStderr: %s", entityName, id, stdout, stderr)
	}
}

// AssertJSONOutput verifies command output is valid JSON
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	if !json.Valid([]byte(strings.TrimSpace(output))) {
		t.Errorf("Output does not appear to be JSON: %s", output)
	}
}

func decodeJSON(output string, v interface{}) error {
	return json.Unmarshal([]byte(output), v)
}
