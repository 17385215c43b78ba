package cli

import (
	"fmt"

	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/spf13/cobra"
)

var healthStats bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the desk server and OCR backend",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthStats, "stats", false, "include runtime statistics")
}

func runHealth(cmd *cobra.Command, args []string) error {
	h, err := deskClient.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("desk server unreachable at %s: %w", deskClient.BaseURL(), err)
	}

	fmt.Printf("Desk:    %s (version %s)\n", defaultTheme.completedStyle().Render("ok"), h.Version)
	if h.Backend != nil {
		fmt.Printf("Backend: %s (version %s, parser %s, rag %t)\n",
			defaultTheme.completedStyle().Render("ok"), h.Backend.Version, h.Backend.ParserDefault, h.Backend.EnableRag)
	} else {
		fmt.Printf("Backend: %s\n", defaultTheme.errorStyle().Render(h.BackendError))
	}

	if !healthStats {
		return nil
	}
	s, err := deskClient.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	fmt.Printf("\nUptime: %.0fs\n", s.UptimeSeconds)
	printOp("extract", s.Extract)
	printOp("job status", s.JobStatus)
	printOp("convert", s.Convert)
	printOp("rag ingest", s.RagIngest)
	printOp("rag query", s.RagQuery)
	printOp("job run", s.JobRun)
	printOp("store query", s.StoreQuery)
	return nil
}

func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil || op.Count == 0 {
		return
	}
	fmt.Printf("  %-12s %5d calls  %3d errors  avg %.1fms  max %dms\n", name, op.Count, op.Errors, op.AvgTimeMs, op.MaxTimeMs)
}
