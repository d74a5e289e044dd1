// Command batchctl submits and follows GreenEye batch analyses from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/greeneye/pkg/client"
)

// exitPollTimeout distinguishes a wait that ran out of time from other failures.
const exitPollTimeout = 3

type globalOptions struct {
	server string
	apiKey string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, client.ErrPollTimeout) {
			os.Exit(exitPollTimeout)
		}
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "batchctl",
		Short:         "GreenEye batch image analysis CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("GREENEYE_URL", "http://localhost:8080"), "GreenEye server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("GREENEYE_API_KEY"), "API key (defaults to $GREENEYE_API_KEY)")

	rootCmd.AddCommand(
		submitCommand(opts),
		statusCommand(opts),
		resultsCommand(opts),
		waitCommand(opts),
		cancelCommand(opts),
		listCommand(opts),
	)
	return rootCmd
}

func (o *globalOptions) client() (*client.Client, error) {
	if o.apiKey == "" {
		return nil, errors.New("an API key is required: pass --api-key or set GREENEYE_API_KEY")
	}
	return client.New(o.server, o.apiKey), nil
}

func submitCommand(opts *globalOptions) *cobra.Command {
	var (
		fieldID      string
		analysisType string
		wait         bool
		interval     time.Duration
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit IMAGE_URL...",
		Short: "Submit images for batch analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			sub, err := c.Submit(cmd.Context(), client.SubmitInput{
				ImageURLs:    args,
				FieldID:      fieldID,
				AnalysisType: analysisType,
			})
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), sub)
			}
			out, err := c.WaitForCompletion(cmd.Context(), sub.BatchAnalysisID, interval, timeout)
			if err != nil {
				return fmt.Errorf("batch %s: %w", sub.BatchAnalysisID, err)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&fieldID, "field", "", "Field the images belong to (required)")
	cmd.Flags().StringVar(&analysisType, "type", "", "Analysis type: comprehensive, health_focused, disease_detection, pest_monitoring")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the batch to finish and print its results")
	addPollFlags(cmd, &interval, &timeout)
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func statusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status BATCH_ID",
		Short: "Show a batch analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := clientAndID(opts, args[0])
			if err != nil {
				return err
			}
			job, err := c.GetBatch(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func resultsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "results BATCH_ID",
		Short: "Print the per-image results of a batch analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := clientAndID(opts, args[0])
			if err != nil {
				return err
			}
			results, err := c.Results(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
}

func waitCommand(opts *globalOptions) *cobra.Command {
	var interval, timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait BATCH_ID",
		Short: "Poll a batch analysis until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := clientAndID(opts, args[0])
			if err != nil {
				return err
			}
			out, err := c.WaitForCompletion(cmd.Context(), id, interval, timeout)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	addPollFlags(cmd, &interval, &timeout)
	return cmd
}

func cancelCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel BATCH_ID",
		Short: "Cancel a processing batch analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := clientAndID(opts, args[0])
			if err != nil {
				return err
			}
			job, err := c.Cancel(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func listCommand(opts *globalOptions) *cobra.Command {
	var filter client.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batch analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			jobs, total, err := c.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"batches": jobs, "total": total})
		},
	}
	cmd.Flags().StringVar(&filter.FieldID, "field", "", "Only batches for this field")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only batches with this status")
	cmd.Flags().IntVar(&filter.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Page size (max 100)")
	return cmd
}

func addPollFlags(cmd *cobra.Command, interval, timeout *time.Duration) {
	cmd.Flags().DurationVar(interval, "interval", client.DefaultPollInterval, "Polling interval")
	cmd.Flags().DurationVar(timeout, "timeout", client.DefaultPollTimeout, "Give up after this long")
}

func clientAndID(opts *globalOptions, raw string) (*client.Client, uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("invalid batch id %q: %w", raw, err)
	}
	c, err := opts.client()
	if err != nil {
		return nil, uuid.Nil, err
	}
	return c, id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
