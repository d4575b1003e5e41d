package main

import (
	"github.com/spf13/cobra"

	"github.com/fisheries-data/creel/internal/output"
	"github.com/fisheries-data/creel/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "creel",
	Short: "Fishing regulation extraction pipeline with AI-powered parsing",
	Long: `Creel extracts structured per-lake, per-species fishing regulations
from regulatory PDF documents using AI-powered analysis.

The pipeline includes:
  - Size-bounded PDF chunk splitting
  - Text extraction and relevance segmentation
  - Lake entry parsing (NAME (County) format)
  - AI extraction of species rules with schema validation
  - Deduplicating merge across chunks
  - Idempotent population of the entity store`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.creel/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "creel home directory (default: ~/.creel)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		output.SetFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
}
