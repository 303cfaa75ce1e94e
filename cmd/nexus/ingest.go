package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/rag/index"
	"github.com/spf13/cobra"
)

func buildIngestCmd() *cobra.Command {
	var (
		recursive  bool
		fromWeb    bool
		collection string
		userID     string
		tagPairs   []string
	)

	cmd := &cobra.Command{
		Use:   "ingest <path-or-url>",
		Short: "Run one ingestion pass over a file, directory or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := observability.NewLogger(observability.LogConfig{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			slog.SetDefault(logger)

			ctx := cmd.Context()
			provider := buildProvider(cfg)

			vectorStore, err := buildVectorStore(cfg)
			if err != nil {
				return fmt.Errorf("connect vector store: %w", err)
			}
			defer vectorStore.Close()

			pool, err := buildBrowserPool()
			if err != nil {
				logger.Warn("headless browser unavailable, web ingestion disabled", "error", err)
			} else {
				defer pool.Close()
			}

			pipeline := buildPipeline(cfg, provider, vectorStore, pool)

			tags, err := parseTags(tagPairs)
			if err != nil {
				return err
			}

			report, err := pipeline.Ingest(ctx, index.Request{
				Path:       args[0],
				Recursive:  recursive,
				FromWeb:    fromWeb,
				UserID:     userID,
				Tags:       tags,
				Collection: collection,
			})
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"items=%d succeeded=%d failed=%d chunks=%d duration=%s\n",
					report.TotalItems, report.Succeeded, report.Failed,
					report.ChunksIndexed, report.FinishedAt.Sub(report.StartedAt).Round(1e6))
				for _, e := range report.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %s\n", e.Item.URI, e.Error)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Walk directories recursively")
	cmd.Flags().BoolVar(&fromWeb, "from-web", false, "Treat the argument as a URL fetched by headless browser")
	cmd.Flags().StringVar(&collection, "collection", "", "Target collection (default from config)")
	cmd.Flags().StringVar(&userID, "user", "", "User id to tag points with")
	cmd.Flags().StringSliceVar(&tagPairs, "tag", nil, "Access tag key=value (repeatable)")
	return cmd
}

func parseTags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", pair)
		}
		tags[key] = value
	}
	return tags, nil
}
