package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/ingest"
	"github.com/mohammad-safakhou/hously/internal/knowledge"
	"github.com/mohammad-safakhou/hously/internal/llm"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var docsDir string

	var cmd = &cobra.Command{
		Use:   "ingest [url ...]",
		Short: "Index local housing documents and optional URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			provider, err := llm.NewProvider(cfg.LLM)
			if err != nil {
				return fmt.Errorf("llm provider: %w", err)
			}
			index, err := knowledge.Open(cfg.Retrieval, provider, cfg.LLM.Embedding.Model)
			if err != nil {
				return fmt.Errorf("knowledge index: %w", err)
			}
			defer index.Close()
			parents, err := knowledge.NewParentStore(cfg.Retrieval.ParentStorePath)
			if err != nil {
				return fmt.Errorf("parent store: %w", err)
			}

			logger := log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
			pipeline := ingest.NewPipeline(index, parents, cfg.Ingest, logger)

			ctx := cmd.Context()
			if docsDir == "" {
				docsDir = cfg.Ingest.DocsDir
			}
			n, err := pipeline.IngestDir(ctx, docsDir)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", docsDir, err)
			}
			for _, rawURL := range args {
				if err := pipeline.IngestURL(ctx, rawURL); err != nil {
					return fmt.Errorf("ingest %s: %w", rawURL, err)
				}
				n++
			}
			logger.Printf("ingested %d documents, index now holds %d chunks", n, index.Count())
			return nil
		},
	}
	cmd.Flags().StringVar(&docsDir, "docs", "", "documents directory (defaults to ingest.docs_dir)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
