package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/ocrdesk/internal/layout"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
	"github.com/spf13/cobra"
)

var (
	extractLanguage     string
	extractMode         string
	extractSettingsFile string
	extractLayout       bool
	extractFind         string
	extractExport       string
	extractOutput       string
	extractJSON         bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Recognize a single file and print its text",
	Long: `Recognize one file synchronously through the desk server.

With --layout the recognized layout is drawn in the terminal, words colored by
confidence. When the backend returns no layout an estimated one is projected
from the text. --export writes the layout as txt or json.

Examples:
  ocrdesk extract receipt.jpg
  ocrdesk extract contract.pdf --layout --find "total"
  ocrdesk extract scan.png --export json -o scan-layout.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractLanguage, "language", "l", "", "recognition language")
	extractCmd.Flags().StringVarP(&extractMode, "mode", "m", "", "recognition mode")
	extractCmd.Flags().StringVar(&extractSettingsFile, "settings", "", "YAML file with OCR settings")
	extractCmd.Flags().BoolVar(&extractLayout, "layout", false, "render the layout overlay")
	extractCmd.Flags().StringVar(&extractFind, "find", "", "highlight words matching text in the overlay")
	extractCmd.Flags().StringVar(&extractExport, "export", "", "export layout as txt or json")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "export destination (default ocr-layout.<format>, - for stdout)")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the full result as JSON")
}

func runExtract(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(extractSettingsFile, extractLanguage, extractMode)
	if err != nil {
		return err
	}
	f, err := upload.FromPath(args[0])
	if err != nil {
		return err
	}
	if err := upload.Validate(f); err != nil {
		return err
	}

	resp, err := deskClient.Extract(cmd.Context(), f, &settings)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	if extractExport != "" {
		return exportPages(resp.Layout, layout.ExportFormat(extractExport), extractOutput)
	}
	if extractJSON {
		return printJSON(resp)
	}
	if extractLayout {
		out, stats := renderLayout(resp.Layout, extractFind, defaultTheme)
		fmt.Print(out)
		fmt.Println(renderLegend(stats, resp.LayoutFallback, defaultTheme))
		return nil
	}

	fmt.Println(resp.Result.FullText)
	fmt.Fprintf(os.Stderr, "\nLanguage: %s  Confidence: %.0f%%  Pages: %d\n",
		resp.Result.Language, resp.Result.AvgConfidence*100, max(len(resp.Result.Pages), len(resp.Layout)))
	return nil
}

// exportPages writes pages in format to output, defaulting to the format's file name.
func exportPages(pages []models.Page, format layout.ExportFormat, output string) error {
	art, err := layout.Export(pages, format)
	if err != nil {
		return err
	}
	if output == "" {
		output = art.Name
	}
	return writeOutput(output, art.Data)
}
