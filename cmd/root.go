package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/venuedesk/internal/config"
	"github.com/teemow/venuedesk/internal/logging"
)

// Global flags shared by every subcommand.
var (
	configPath string
	logFormat  string
	logLevel   string
)

// rootCmd represents the base command for the venuedesk application
var rootCmd = &cobra.Command{
	Use:   "venuedesk",
	Short: "Triage a venue inbox and approve drafted replies over SMS",
	Long: `venuedesk keeps a local cache of a venue's Gmail inbox, classifies each
message, links booking requests to calendar events and drafts replies that an
operator approves or edits by text message.

It can run as:
  - A one-shot sync or suggestion pass (sync, suggest)
  - A long-running service with an HTTP API and an MCP server (serve)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if !cmd.Flags().Changed("log-format") {
			if v := os.Getenv("VENUEDESK_LOG_FORMAT"); v != "" {
				logFormat = v
			}
		}
		if !cmd.Flags().Changed("log-level") {
			if v := os.Getenv("VENUEDESK_LOG_LEVEL"); v != "" {
				logLevel = v
			}
		}
		if !cmd.Flags().Changed("config") {
			if v := os.Getenv("VENUEDESK_CONFIG"); v != "" {
				configPath = v
			}
		}
		return nil
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "venuedesk version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global flags. Logs go to
// stderr so stdout stays free for the stdio transport and command output.
func newLogger() (*slog.Logger, error) {
	return logging.NewLogger(os.Stderr, logFormat, logLevel)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file. Can also use VENUEDESK_CONFIG env var.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json. Can also use VENUEDESK_LOG_FORMAT env var.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error. Can also use VENUEDESK_LOG_LEVEL env var.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSuggestCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
