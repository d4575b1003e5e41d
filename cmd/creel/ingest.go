package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fisheries-data/creel/internal/config"
	"github.com/fisheries-data/creel/internal/home"
	"github.com/fisheries-data/creel/internal/output"
	"github.com/fisheries-data/creel/internal/pipeline"
	"github.com/fisheries-data/creel/internal/providers"
	"github.com/fisheries-data/creel/internal/regs"
	"github.com/fisheries-data/creel/internal/store"
)

var (
	ingestDryRun     bool
	ingestYear       int
	ingestDocumentID string
	ingestStream     bool
	ingestQuiet      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Extract regulations from a PDF or text document and populate the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		dir, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := dir.EnsureExists(); err != nil {
			return err
		}

		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		// Dry runs exercise the full pipeline against a throwaway store.
		dbPath := dir.DBPath()
		if ingestDryRun {
			dbPath = ":memory:"
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open entity store: %w", err)
		}
		defer st.Close()

		client, err := buildClient(cfg, ingestDryRun)
		if err != nil {
			return err
		}

		p := pipeline.New(pipeline.Options{
			Store:  st,
			Client: client,
			Config: cfg,
			Logger: slog.Default(),
		})

		req := pipeline.Request{
			Data:          data,
			Filename:      filepath.Base(path),
			ContentType:   contentTypeFor(path),
			DocumentID:    ingestDocumentID,
			Year:          ingestYear,
			StreamPersist: ingestStream,
		}
		if !ingestQuiet {
			req.OnEntry = func(reg regs.ExtractedRegulation) error {
				fmt.Fprintf(os.Stderr, "  %s (%s): %d rules, confidence %.2f\n",
					reg.WaterBody, reg.Locality, len(reg.Rules), reg.Confidence)
				return nil
			}
		}

		start := time.Now()
		result, err := p.Run(cmd.Context(), req)
		if err != nil {
			return err
		}
		if !ingestQuiet {
			fmt.Fprintf(os.Stderr, "done in %s\n", time.Since(start).Round(time.Millisecond))
		}

		if !ingestDryRun {
			if err := exportReport(dir.ExportsDir(), result); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to export report: %v\n", err)
			}
		}

		return output.Render(result)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false,
		"run the pipeline against a mock backend and a throwaway store")
	ingestCmd.Flags().IntVar(&ingestYear, "year", 0,
		"regulation year (default: configured population.regulation_year)")
	ingestCmd.Flags().StringVar(&ingestDocumentID, "document-id", "",
		"stable document id for re-ingestion (default: generated)")
	ingestCmd.Flags().BoolVar(&ingestStream, "stream", true,
		"persist each lake's regulations as extracted, not only after the merge")
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false,
		"suppress per-lake progress on stderr")
}

// buildClient constructs the chat backend from provider config.
func buildClient(cfg *config.Config, dryRun bool) (providers.ChatClient, error) {
	if dryRun || cfg.Provider.Type == providers.MockClientName {
		mock := providers.NewMockClient()
		mock.ResponseJSON = json.RawMessage(`{"species": []}`)
		return mock, nil
	}

	apiKey := config.ResolveEnvVars(cfg.Provider.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("provider api_key resolves to empty; set it in config or the referenced environment variable")
	}

	return providers.NewOpenAIClient(providers.OpenAIConfig{
		APIKey:     apiKey,
		Model:      cfg.Provider.Model,
		BaseURL:    cfg.Provider.BaseURL,
		RPM:        int(cfg.Provider.RateLimit),
		MaxRetries: cfg.Provider.MaxRetries,
		Timeout:    time.Duration(cfg.Provider.TimeoutSec) * time.Second,
	}), nil
}

// exportReport writes the run report under the exports directory.
func exportReport(exportsDir string, result *pipeline.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(exportsDir, result.DocumentID+".json")
	return os.WriteFile(path, data, 0o644)
}

func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return "text/plain"
	}
	return "application/pdf"
}
