package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devagent/internal/kernel"
	"devagent/pkg/config"
	"devagent/pkg/proto"
)

type submitOptions struct {
	task         string
	taskFile     string
	newModule    string
	modifyModule string
	newScript    string
	output       string
	maxAttempts  int
	provider     string
	model        string
	token        string
	metricsAddr  string
	quiet        bool
}

func newSubmitCmd(root *rootOptions) *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Generate an artifact and repair it until it runs",
		Example: `  devagent submit --new-script Hello --task "print hello"
  devagent submit --modify-module Thresholder --task-file change.md --max-attempts 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.task, "task", "", "Task description")
	f.StringVar(&opts.taskFile, "task-file", "", "Read the task description from a file")
	f.StringVar(&opts.newModule, "new-module", "", "Create a new module with this name")
	f.StringVar(&opts.modifyModule, "modify-module", "", "Modify the existing module with this name")
	f.StringVar(&opts.newScript, "new-script", "", "Create a new script with this name")
	f.StringVar(&opts.output, "output", "", "Output directory (default output.root)")
	f.IntVar(&opts.maxAttempts, "max-attempts", -1, "Debug attempts after the first try (default loop.max_attempts)")
	f.StringVar(&opts.provider, "provider", "", "Generation provider override")
	f.StringVar(&opts.model, "model", "", "Model override")
	f.StringVar(&opts.token, "token", "", "API token (overrides stored secrets and environment)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not stream the transcript")

	cmd.MarkFlagsMutuallyExclusive("task", "task-file")
	cmd.MarkFlagsMutuallyExclusive("new-module", "modify-module", "new-script")
	cmd.MarkFlagsOneRequired("new-module", "modify-module", "new-script")
	return cmd
}

// buildRequest turns the flags into a validated Request.
func (o *submitOptions) buildRequest(cfg *config.Config) (*proto.Request, error) {
	task := o.task
	if o.taskFile != "" {
		data, err := os.ReadFile(o.taskFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read task file: %w", err)
		}
		task = string(data)
	}

	req := &proto.Request{
		TaskDescription: strings.TrimSpace(task),
		OutputLocation:  o.output,
		MaxAttempts:     o.maxAttempts,
		ModelSelector:   proto.ModelSelector{Provider: o.provider, Model: o.model},
	}
	switch {
	case o.newModule != "":
		req.TargetKind, req.TargetIdentifier = proto.TargetNewModule, o.newModule
	case o.modifyModule != "":
		req.TargetKind, req.TargetIdentifier = proto.TargetModifyModule, o.modifyModule
	case o.newScript != "":
		req.TargetKind, req.TargetIdentifier = proto.TargetNewScript, o.newScript
	default:
		return nil, errors.New("one of --new-module, --modify-module or --new-script is required")
	}
	if req.MaxAttempts < 0 {
		req.MaxAttempts = cfg.Loop.Attempts()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func runSubmit(cmd *cobra.Command, root *rootOptions, opts *submitOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	req, err := opts.buildRequest(cfg)
	if err != nil {
		return err
	}

	token := opts.token
	if token == "" {
		token = promptForToken(cmd, cfg, req.ModelSelector)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := kernel.NewKernel(ctx, cfg, root.projectDir, kernel.Options{
		Token:       token,
		MetricsAddr: opts.metricsAddr,
		LogToFile:   true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = k.Stop() }()
	if err := k.Start(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "⏳ %s '%s' with up to %d debug attempts\n", req.TargetKind, req.TargetIdentifier, req.MaxAttempts)

	var result *proto.SessionResult
	if opts.quiet {
		result = k.Submit(ctx, req)
	} else {
		result = k.Submit(ctx, req, func(line proto.TranscriptLine) {
			fmt.Fprintln(out, line.String())
		})
	}

	printResult(out, result)
	if !result.Success {
		return &exitError{code: 1, err: fmt.Errorf("session %s failed: %s", result.SessionID, result.ErrorType)}
	}
	return nil
}

func printResult(out io.Writer, result *proto.SessionResult) {
	fmt.Fprintln(out)
	if result.Success {
		fmt.Fprintln(out, "✅ "+result.Message)
	} else {
		fmt.Fprintln(out, "❌ "+result.Error)
	}
	fmt.Fprintf(out, "\nSession: %s (attempts used: %d)\n", result.SessionID, result.AttemptsUsed)
}

// promptForToken asks for a credential on a terminal when the provider needs
// one and none is stored. It returns "" when it cannot or need not ask.
func promptForToken(cmd *cobra.Command, cfg *config.Config, selector proto.ModelSelector) string {
	provider := selector.Provider
	if provider == "" {
		if selector.Model != "" {
			provider, _ = config.GetModelProvider(selector.Model)
		}
		if provider == "" {
			provider = cfg.Generation.Provider
		}
	}
	name, needed := config.SecretNameFor(provider)
	if !needed {
		return ""
	}
	if _, err := config.GetSecret(name); err == nil {
		return ""
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return ""
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "🔑 %s is not set. Enter it now (input hidden): ", name)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(value))
}
