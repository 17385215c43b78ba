package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/client"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var (
	batchLanguage     string
	batchMode         string
	batchSettingsFile string
	batchNoWait       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Submit files for batch recognition",
	Long: `Validate files locally and submit them to the desk server as a batch.

Progress is shown as live bars when stdout is a terminal and as plain status
lines otherwise. Settings start from the defaults, are overlaid with the YAML
file given by --settings and finally with --language and --mode.

Examples:
  ocrdesk batch scan1.png scan2.pdf
  ocrdesk batch *.jpg --language vi --mode accurate
  ocrdesk batch invoice.pdf --settings ocr.yaml --no-wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchLanguage, "language", "l", "", "recognition language (auto, vi, en, ja, ko, zh)")
	batchCmd.Flags().StringVarP(&batchMode, "mode", "m", "", "recognition mode (fast, balanced, accurate)")
	batchCmd.Flags().StringVar(&batchSettingsFile, "settings", "", "YAML file with OCR settings")
	batchCmd.Flags().BoolVar(&batchNoWait, "no-wait", false, "print job ids and exit without following progress")
}

// loadSettings builds OCR settings from the defaults, an optional YAML file and flag overrides.
func loadSettings(path, language, mode string) (models.OcrSettings, error) {
	settings := models.DefaultOcrSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return settings, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return settings, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if language != "" {
		settings.Language = language
	}
	if mode != "" {
		settings.Mode = mode
	}
	return settings, nil
}

// readFiles loads and validates paths, reporting rejected files on stderr.
func readFiles(paths []string) []upload.File {
	var files []upload.File
	for _, p := range paths {
		f, err := upload.FromPath(p)
		if err == nil {
			err = upload.Validate(f)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, defaultTheme.errorStyle().Render("✗ "+p+": "+err.Error()))
			continue
		}
		files = append(files, f)
	}
	return files
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	settings, err := loadSettings(batchSettingsFile, batchLanguage, batchMode)
	if err != nil {
		return err
	}

	files := readFiles(args)
	if len(files) == 0 {
		return errors.New("no valid files to submit")
	}

	batch, err := deskClient.SubmitBatch(ctx, files, &settings)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	for _, r := range batch.Rejected {
		fmt.Fprintln(os.Stderr, defaultTheme.errorStyle().Render("✗ "+r.FileName+": "+r.Error))
	}

	if batchNoWait {
		for _, j := range batch.Jobs {
			fmt.Printf("%s  %s\n", j.ID, j.FileName)
		}
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunBatchProgress(deskClient, batch.Jobs)
	}
	return followPlain(ctx, deskClient, batch.Jobs)
}

// followPlain polls until every job is terminal, printing each status change.
func followPlain(ctx context.Context, c *client.Client, jobs []models.Job) error {
	last := make(map[string]models.JobStatus, len(jobs))
	pending := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		pending[j.ID] = true
	}

	var failed int
	for len(pending) > 0 {
		for id := range pending {
			j, err := c.GetJob(ctx, id)
			if client.IsNotFound(err) {
				fmt.Printf("%s  evicted\n", id)
				delete(pending, id)
				continue
			}
			if err != nil {
				return fmt.Errorf("get job %s: %w", id, err)
			}
			if last[id] != j.Status {
				last[id] = j.Status
				fmt.Printf("%s  %-22s %3d%%  %s\n", j.ID, j.Status, j.Progress, j.FileName)
			}
			if j.Status.IsTerminal() {
				delete(pending, id)
				if j.Status == models.JobStatusError {
					failed++
					fmt.Printf("%s  error: %s\n", j.ID, j.Message)
				}
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(jobs))
	}
	return nil
}
