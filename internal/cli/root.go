// Package cli provides the command-line interface for ocrdesk.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/ocrdesk/internal/client"
	"github.com/raphaelgruber/ocrdesk/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	cfg        config.Config
	deskClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ocrdesk",
	Short: "Document OCR desk",
	Long: `ocrdesk submits documents to an OCR backend through the desk server,
tracks batch jobs, renders recognized layout in the terminal and converts
text into downloadable files.

The desk server (ocrdesk-server) must be running for most commands.
Configuration is read from the environment and an optional .env file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if err := config.LoadEnvFile(".env"); err != nil {
			return err
		}
		cfg = config.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		deskClient = client.New(cfg.ServerURL, cfg.ClientTimeout)
		slog.Debug("using desk server", "url", deskClient.BaseURL())
		return nil
	},
}

// Execute runs the root command. ctx is canceled on interrupt by the caller.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "desk server URL (default $OCRDESK_SERVER_URL)")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(langCmd)
	rootCmd.AddCommand(watchCmd)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes data to path, or to stdout when path is "-".
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", path, len(data))
	return nil
}
