// Command devagent generates host-application modules and scripts with a
// language model and repairs them until they validate and run.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devagent/pkg/config"
	"devagent/pkg/version"
)

// passwordEnv holds the project password for non-interactive runs.
const passwordEnv = "DEVAGENT_PASSWORD"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if e, ok := err.(*exitError); ok { //nolint:errorlint // only the top-level error carries a code
		return e.code
	}
	return 1
}

type rootOptions struct {
	projectDir string
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "devagent",
		Short:         "Generate, validate and self-repair host modules and scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.projectDir, "projectdir", ".", "Project directory holding .devagent/")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default <projectdir>/.devagent/config.yaml)")

	cmd.AddCommand(
		newSubmitCmd(opts),
		newHistoryCmd(opts),
		newTranscriptCmd(opts),
		newStatsCmd(opts),
		newSecretsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads the project config and, when a secrets file exists,
// decrypts it with the password from DEVAGENT_PASSWORD.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	projectDir, err := filepath.Abs(o.projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	o.projectDir = projectDir

	path := o.configPath
	if path == "" {
		path = config.DefaultPath(projectDir)
	}
	cfg, err := config.LoadConfig(path, projectDir)
	if err != nil {
		return nil, err
	}

	if config.SecretsFileExists(projectDir) {
		if password := os.Getenv(passwordEnv); password != "" {
			if err := config.LoadSecretsFile(projectDir, password); err != nil {
				return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
			}
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "devagent %s\n", version.Version)
			fmt.Fprintf(out, "  commit: %s\n", version.Commit)
			fmt.Fprintf(out, "  built:  %s\n", version.Date)
		},
	}
}
