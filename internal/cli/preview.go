package cli

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/ocrdesk/internal/preview"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
	"github.com/spf13/cobra"
)

var previewLines int

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Describe a file before submitting it",
	Long: `Show what the desk sees in a file: text content for txt, md and pdf,
dimensions for images.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().IntVarP(&previewLines, "lines", "n", 20, "max text lines to show (0 for all)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	f, err := upload.FromPath(args[0])
	if err != nil {
		return err
	}
	p, err := deskClient.Preview(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	fmt.Printf("%s (%s, %s)\n", p.FileName, p.Kind, p.Size)
	switch p.Kind {
	case preview.KindImage:
		if p.Image == nil {
			break
		}
		fmt.Printf("  %s image, %dx%d\n", p.Image.Format, p.Image.Width, p.Image.Height)
	case preview.KindPDF:
		fmt.Printf("  %d page(s)\n", p.Pages)
	}
	if p.Text != "" {
		fmt.Println()
		fmt.Println(headLines(p.Text, previewLines))
	}
	return nil
}

// headLines keeps the first n lines of s, noting how many were dropped.
func headLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if n <= 0 || len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + defaultTheme.hintStyle().Render(fmt.Sprintf("\n… %d more line(s)", len(lines)-n))
}
