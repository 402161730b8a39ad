package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"devagent/pkg/metrics"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var prometheusURL string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Query Prometheus for session and model usage totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if prometheusURL == "" {
				prometheusURL = cfg.Metrics.PrometheusURL
			}
			if prometheusURL == "" {
				return errors.New("no Prometheus configured (set metrics.prometheus_url or --prometheus-url)")
			}

			svc, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			return printStats(ctx, cmd.OutOrStdout(), svc)
		},
	}
	cmd.Flags().StringVar(&prometheusURL, "prometheus-url", "", "Prometheus base URL (default metrics.prometheus_url)")
	return cmd
}

func printStats(ctx context.Context, out io.Writer, svc *metrics.QueryService) error {
	sessions, err := svc.GetSessionStats(ctx)
	if err != nil {
		return err
	}
	failures, err := svc.GetFailuresByErrorType(ctx)
	if err != nil {
		return err
	}
	models, err := svc.GetModelUsage(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET KIND\tSUCCEEDED\tFAILED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%d\n", s.TargetKind, s.Succeeded, s.Failed)
	}
	_ = w.Flush()

	if len(failures) > 0 {
		fmt.Fprintln(out)
		types := make([]string, 0, len(failures))
		for t := range failures {
			types = append(types, t)
		}
		sort.Strings(types)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ERROR TYPE\tSESSIONS")
		for _, t := range types {
			fmt.Fprintf(w, "%s\t%d\n", t, failures[t])
		}
		_ = w.Flush()
	}

	if len(models) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tREQUESTS\tERRORS\tPROMPT TOKENS\tCOMPLETION TOKENS")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", m.Model, m.Requests, m.Errors, m.PromptTokens, m.CompletionTokens)
		}
		_ = w.Flush()
	}
	return nil
}
