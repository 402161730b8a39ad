package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devagent/pkg/config"
)

func newSecretsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted credentials file",
	}
	cmd.AddCommand(newSecretsSetCmd(root), newSecretsListCmd(root))
	return cmd
}

func newSecretsSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <NAME>",
		Short: "Store a secret (e.g. GITHUB_TOKEN) in .devagent/secrets.json.enc",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, err := root.loadConfig(); err != nil {
				return err
			}

			value, err := readSecret(cmd, fmt.Sprintf("Value for %s: ", name))
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty value, nothing stored")
			}

			password, err := projectPassword(cmd, !config.SecretsFileExists(root.projectDir))
			if err != nil {
				return err
			}
			if config.SecretsFileExists(root.projectDir) {
				if err := config.LoadSecretsFile(root.projectDir, password); err != nil {
					return err
				}
			}

			config.SetSecret(name, value)
			if err := config.SaveSecretsToFile(root.projectDir, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Stored %s in %s/secrets.json.enc (file permissions: 0600)\n", name, config.ProjectDirName)
			return nil
		},
	}
}

func newSecretsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the names of stored secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.loadConfig(); err != nil {
				return err
			}
			if !config.SecretsFileExists(root.projectDir) {
				fmt.Fprintln(cmd.OutOrStdout(), "No secrets file.")
				return nil
			}
			password, err := projectPassword(cmd, false)
			if err != nil {
				return err
			}
			if err := config.LoadSecretsFile(root.projectDir, password); err != nil {
				return err
			}
			for _, name := range config.GetDecryptedSecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// projectPassword returns DEVAGENT_PASSWORD or prompts for it. A new secrets
// file asks for confirmation.
func projectPassword(cmd *cobra.Command, confirm bool) (string, error) {
	if password := os.Getenv(passwordEnv); password != "" {
		return password, nil
	}
	password, err := readSecret(cmd, "Project password: ")
	if err != nil {
		return "", err
	}
	if !confirm {
		return password, nil
	}
	again, err := readSecret(cmd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != again {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt without a terminal (set %s)", passwordEnv)
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(value)), nil
}
