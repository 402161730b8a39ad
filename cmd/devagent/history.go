package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devagent/pkg/persistence"
	"devagent/pkg/proto"
)

func openOperations(root *rootOptions) (*persistence.DatabaseOperations, func(), error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := persistence.Open(cfg.Persistence.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return persistence.NewDatabaseOperations(db), func() { _ = db.Close() }, nil
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, closeDB, err := openOperations(root)
			if err != nil {
				return err
			}
			defer closeDB()

			sessions, err := ops.ListSessions(limit)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to list")
	return cmd
}

func printSessions(out io.Writer, sessions []*persistence.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tKIND\tTARGET\tSTATUS\tATTEMPTS\tERROR")
	for _, s := range sessions {
		attempts := "-"
		if s.AttemptsUsed >= 0 {
			attempts = fmt.Sprintf("%d/%d", s.AttemptsUsed, s.MaxAttempts)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.TargetKind, s.TargetIdentifier, s.Status, attempts, s.ErrorType)
	}
	_ = w.Flush()
}

func newTranscriptCmd(root *rootOptions) *cobra.Command {
	var showCode bool
	cmd := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print the attempts and transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, closeDB, err := openOperations(root)
			if err != nil {
				return err
			}
			defer closeDB()

			session, err := ops.GetSession(args[0])
			if errors.Is(err, persistence.ErrSessionNotFound) {
				return fmt.Errorf("no session %q", args[0])
			}
			if err != nil {
				return err
			}
			attempts, err := ops.GetAttempts(session.SessionID)
			if err != nil {
				return err
			}
			transcript, err := ops.GetTranscript(session.SessionID)
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), session, attempts, transcript, showCode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCode, "code", false, "Include the generated code of each attempt")
	return cmd
}

func printTranscript(out io.Writer, session *persistence.Session, attempts []proto.Attempt, transcript []proto.TranscriptLine, showCode bool) {
	fmt.Fprintf(out, "Session %s: %s '%s' [%s]\n", session.SessionID, session.TargetKind, session.TargetIdentifier, session.Status)
	fmt.Fprintf(out, "Task: %s\n", session.Task)
	if session.ArtifactPath != "" {
		fmt.Fprintf(out, "Artifact: %s\n", session.ArtifactPath)
	}

	for _, line := range transcript {
		if line.Attempt == proto.NoAttempt {
			fmt.Fprintln(out, line.String())
		}
	}

	for _, a := range attempts {
		fmt.Fprintf(out, "\n── Attempt %d ── validation: %s, execution: %s\n", a.Index+1, a.ValidationOutcome, a.ExecutionOutcome)
		for _, line := range a.DiagnosticTranscript {
			fmt.Fprintln(out, line.String())
		}
		if showCode && a.GeneratedText != nil {
			fmt.Fprintln(out, "---START CODE---")
			fmt.Fprintln(out, strings.TrimRight(*a.GeneratedText, "\n"))
			fmt.Fprintln(out, "---END CODE---")
		}
	}

	if session.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", session.Summary)
	}
}
