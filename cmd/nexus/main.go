// Package main provides the CLI entry point for the agent core.
//
// The core exposes three subcommands:
//
//	nexus serve          start the HTTP edge (chat + ingestion)
//	nexus ingest <path>  run one ingest_path pipeline pass from the CLI
//	nexus mcp ...         inspect and exercise the MCP tool registry
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nexus",
		Short:        "Nexus agent core: agent loop, MCP registry and ingestion pipeline",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")
	root.AddCommand(buildServeCmd(), buildIngestCmd(), buildMCPCmd())
	return root
}
