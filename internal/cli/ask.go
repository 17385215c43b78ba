package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askMode string
	askVLM  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about indexed documents",
	Long: `Ask the retrieval backend a question about documents indexed with
'ocrdesk ingest'.

Examples:
  ocrdesk ask "What is the invoice total?"
  ocrdesk ask "Who signed the contract?" --mode local --vlm`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	ingestDoc string
	ingestJob string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index a document or finished backend job for questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestDoc == "" && ingestJob == "" {
			return errors.New("one of --doc or --job is required")
		}
		if err := deskClient.RagIngest(cmd.Context(), ingestDoc, ingestJob); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		fmt.Println(defaultTheme.completedStyle().Render("✓ Indexed"))
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askMode, "mode", "hybrid", "retrieval mode")
	askCmd.Flags().BoolVar(&askVLM, "vlm", false, "enhance answers with the vision model")

	ingestCmd.Flags().StringVar(&ingestDoc, "doc", "", "document id")
	ingestCmd.Flags().StringVar(&ingestJob, "job", "", "backend job id (see 'ocrdesk jobs <id>')")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	ans, err := deskClient.RagQuery(cmd.Context(), question, askMode, askVLM)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Println(ans.Answer)
	if n := len(ans.Contexts); n > 0 && verbose {
		fmt.Println(defaultTheme.hintStyle().Render(fmt.Sprintf("\n(%d context passage(s))", n)))
	}
	return nil
}
