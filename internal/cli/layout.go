package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/ocrdesk/internal/layout"
	"github.com/spf13/cobra"
)

var (
	layoutFind   string
	layoutExport string
	layoutOutput string
)

var layoutCmd = &cobra.Command{
	Use:   "layout <textfile|->",
	Short: "Project text onto an estimated page layout",
	Long: `Project plain text onto synthetic pages locally, without the backend,
and render or export the result.

Examples:
  ocrdesk layout notes.txt
  cat notes.txt | ocrdesk layout - --export json -o -`,
	Args: cobra.ExactArgs(1),
	RunE: runLayout,
}

func init() {
	layoutCmd.Flags().StringVar(&layoutFind, "find", "", "highlight words matching text")
	layoutCmd.Flags().StringVar(&layoutExport, "export", "", "export as txt or json instead of rendering")
	layoutCmd.Flags().StringVarP(&layoutOutput, "output", "o", "", "export destination (default ocr-layout.<format>, - for stdout)")
}

// readText reads a text file, or stdin for "-".
func readText(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	text, err := readText(args[0])
	if err != nil {
		return err
	}

	pages := layout.FromText(text)
	if layoutExport != "" {
		return exportPages(pages, layout.ExportFormat(layoutExport), layoutOutput)
	}
	if len(pages) == 0 {
		return layout.ErrNoLayout
	}

	out, stats := renderLayout(pages, layoutFind, defaultTheme)
	fmt.Print(out)
	fmt.Println(renderLegend(stats, true, defaultTheme))
	return nil
}
