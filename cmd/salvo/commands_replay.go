package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/pkg/models"
)

const replayBanner = "══════════ [REPLAY] ══════════"

func buildReplayCmd() *cobra.Command {
	var allowPartial bool
	cmd := &cobra.Command{
		Use:   "replay [trace-id]",
		Short: "Replay a recorded trace without making API calls",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			traceID := ""
			if len(args) > 0 {
				traceID = args[0]
			}
			return runReplay(traceID, allowPartial)
		},
	}
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false,
		"Replay available traces even when some are missing or corrupt")
	return cmd
}

func runReplay(traceID string, allowPartial bool) error {
	stdout := os.Stdout
	color := term.IsTerminal(int(stdout.Fd()))

	fmt.Fprintf(stdout, "\n%s\n\n", paint(color, ansiBold, replayBanner))

	projectRoot := models.FindProjectRoot("")
	projectConfig, err := models.LoadProjectConfig(projectRoot)
	if err != nil {
		return err
	}
	store := storage.NewStore(projectRoot, projectConfig.StorageDir)
	replayer := recording.NewTraceReplayer(store)

	recorded, err := replayer.Load(traceID)
	if err != nil {
		if allowPartial {
			fmt.Fprintln(stdout, paint(color, ansiYellow,
				fmt.Sprintf("Warning: Trace file for '%s' is corrupt. Skipping.", traceID)))
			return nil
		}
		fmt.Fprintf(stdout, "Error: Corrupt trace file for '%s'. Use --allow-partial to skip corrupt traces.\n", traceID)
		return exitWithCode(1)
	}
	if recorded == nil {
		if traceID != "" {
			if allowPartial {
				fmt.Fprintln(stdout, paint(color, ansiYellow,
					fmt.Sprintf("Warning: No recorded trace found for '%s'. Skipping.", traceID)))
				return nil
			}
			fmt.Fprintf(stdout, "Error: No recorded trace found for '%s'. Run 'salvo run --record' first.\n", traceID)
			return exitWithCode(1)
		}
		fmt.Fprintln(stdout, paint(color, ansiDim, "No recorded traces found. Run 'salvo run --record' first."))
		return nil
	}

	if err := recording.ValidateTraceVersion(recorded.Metadata); err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return exitWithCode(1)
	}

	metadataOnly := replayer.IsMetadataOnly(recorded)
	if metadataOnly {
		fmt.Fprintln(stdout, paint(color, ansiYellow,
			"Note: Content excluded (metadata_only recording mode). Message content is not available."))
		fmt.Fprintln(stdout)
	}

	renderRecordedTrace(stdout, recorded, metadataOnly, color)
	return nil
}

func renderRecordedTrace(w io.Writer, recorded *models.RecordedTrace, metadataOnly, color bool) {
	trace := &recorded.Trace

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(key, value string) {
		fmt.Fprintf(tw, "  %s\t%s\n", paint(color, ansiBold, key), value)
	}
	row("Scenario", recorded.Metadata.ScenarioName)
	row("Model", fmt.Sprintf("%s via %s", trace.Model, trace.Provider))
	row("Recorded", recorded.Metadata.RecordedAt.Format(time.RFC3339))
	row("Run ID", recorded.Metadata.SourceRunID)
	row("Turns", fmt.Sprintf("%d", trace.TurnCount))
	row("Tokens", fmt.Sprintf("%d (in=%d, out=%d)", trace.TotalTokens, trace.InputTokens, trace.OutputTokens))
	row("Latency", fmt.Sprintf("%.2fs (recorded)", trace.LatencySeconds))
	cost := "-"
	if trace.CostUSD != nil {
		cost = fmt.Sprintf("$%.4f (recorded)", *trace.CostUSD)
	}
	row("Cost", cost)
	row("Finish", trace.FinishReason)
	tw.Flush()

	fmt.Fprintln(w)
	if metadataOnly {
		fmt.Fprintf(w, "%s %s\n", paint(color, ansiBold, "Final Output:"), paint(color, ansiDim, recording.ContentExcluded))
	} else {
		final := ""
		if trace.FinalContent != nil {
			final = *trace.FinalContent
		}
		fmt.Fprintf(w, "%s %s\n", paint(color, ansiBold, "Final Output:"), truncate(final, 500))
	}

	// Role counts in first-seen order.
	counts := map[string]int{}
	var order []string
	for _, msg := range trace.Messages {
		if counts[msg.Role] == 0 {
			order = append(order, msg.Role)
		}
		counts[msg.Role]++
	}
	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for _, role := range order {
			parts = append(parts, fmt.Sprintf("%d %s", counts[role], role))
		}
		fmt.Fprintf(w, "\n%s %s\n", paint(color, ansiBold, "Messages:"), strings.Join(parts, ", "))
	}

	fmt.Fprintf(w, "\n%s\n", paint(color, ansiDim, fmt.Sprintf("Schema version: %d", recorded.Metadata.SchemaVersion)))
}
