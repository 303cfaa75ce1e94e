package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/nexuscore/agentcore/internal/mcp"
	"github.com/spf13/cobra"
)

func buildMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect and exercise the MCP tool registry",
	}
	cmd.AddCommand(buildMCPToolsCmd(), buildMCPCallCmd(), buildMCPStatusCmd())
	return cmd
}

// withRegistry connects the configured servers, runs fn, and tears the
// connections down again. CLI invocations are one-shot; no periodic
// refresh is started.
func withRegistry(cmd *cobra.Command, fn func(*mcp.Registry) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	manager, registry, err := buildMCPRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Stop()
	if registry == nil {
		return fmt.Errorf("mcp is disabled in configuration")
	}
	defer registry.Stop()

	return fn(registry)
}

func buildMCPToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List every discovered tool with its exposed name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(registry *mcp.Registry) error {
				summaries := mcp.ToolSummaries(registry)
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no tools discovered")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EXPOSED\tQUALIFIED\tSERVER\tDESCRIPTION")
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Canonical, s.Namespace, s.Description)
				}
				return w.Flush()
			})
		},
	}
}

func buildMCPCallCmd() *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool-name>",
		Short: "Call a tool by exposed or qualified name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			var arguments map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			return withRegistry(cmd, func(registry *mcp.Registry) error {
				result, err := registry.CallTool(cmd.Context(), cmdArgs[0], arguments)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	return cmd
}

func buildMCPStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-server connection health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(registry *mcp.Registry) error {
				health := registry.HealthCheck(cmd.Context())

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SERVER\tHEALTHY\tLAST ERROR")
				for _, id := range sortedKeys(health) {
					status := health[id]
					fmt.Fprintf(w, "%s\t%t\t%s\n", id, status.Healthy, status.LastError)
				}
				return w.Flush()
			})
		},
	}
}

func sortedKeys(m map[string]mcp.HealthStatus) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
