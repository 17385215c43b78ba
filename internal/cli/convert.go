package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/spf13/cobra"
)

var (
	convertFormat   string
	convertEncoding string
	convertPageSize string
	convertFontSize int
	convertMetadata bool
	convertName     string
	convertOutput   string
)

var convertCmd = &cobra.Command{
	Use:   "convert <textfile|->",
	Short: "Convert text into a txt, md, json, pdf or docx file",
	Long: `Convert text through the desk server. Plain formats are rendered locally
by the server when the backend is unreachable; pdf and docx need the backend.

Examples:
  ocrdesk convert result.txt --format pdf
  ocrdesk convert result.txt --format json --metadata -o out.json
  ocrdesk convert - --format txt --encoding utf-16 < result.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "txt", "output format (txt, md, json, pdf, docx)")
	convertCmd.Flags().StringVar(&convertEncoding, "encoding", "utf-8", "text encoding (utf-8, utf-16, ascii)")
	convertCmd.Flags().StringVar(&convertPageSize, "page-size", "a4", "page size (a4, letter, legal)")
	convertCmd.Flags().IntVar(&convertFontSize, "font-size", 12, "font size for pdf and docx")
	convertCmd.Flags().BoolVar(&convertMetadata, "metadata", false, "include metadata")
	convertCmd.Flags().StringVar(&convertName, "name", "", "base name of the output file (default: the input's)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "destination (default: the server's file name, - for stdout)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	text, err := readText(args[0])
	if err != nil {
		return err
	}

	name := convertName
	if name == "" && args[0] != "-" {
		name = args[0]
	}

	d, err := deskClient.Convert(cmd.Context(), text, models.ConvertOptions{
		Format:          models.OutputFormat(convertFormat),
		FileName:        name,
		Encoding:        convertEncoding,
		IncludeMetadata: convertMetadata,
		PageSize:        convertPageSize,
		FontSize:        convertFontSize,
	})
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	if d.Local {
		fmt.Fprintln(os.Stderr, defaultTheme.hintStyle().Render("Backend unavailable, rendered locally"))
	}
	out := convertOutput
	if out == "" {
		out = d.Name
	}
	return writeOutput(out, d.Data)
}
