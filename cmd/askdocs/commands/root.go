// Package commands defines all Cobra CLI commands for the askdocs binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs-go/internal/audit"
	"github.com/askdocs/askdocs-go/internal/config"
	"github.com/askdocs/askdocs-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "askdocs",
		Short: "askdocs — retrieval-augmented Q&A over your own documents",
		Long: `askdocs is a local-first document question-answering service.

Upload PDF, DOCX, TXT, or CSV files, and ask natural language questions
against them. Answers are grounded in retrieved document sections, cited
back to their source file and page, and scored for confidence.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.askdocs/config.yaml).
See 'askdocs --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.askdocs/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
