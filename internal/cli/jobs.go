package cli

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/spf13/cobra"
)

var (
	jobsStatus string
	jobsType   string
	jobsDate   string
	jobsJSON   bool
	jobsResult bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect jobs",
	Long: `List the desk's jobs, newest first, or inspect a specific job by ID.

Examples:
  ocrdesk jobs                      # List all jobs
  ocrdesk jobs --status error       # Only failed jobs
  ocrdesk jobs --date 2026-10-19    # Jobs created that day
  ocrdesk jobs job-abc123 --result  # Show a job and its recognized text`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := deskClient.CancelJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		fmt.Printf("Canceled %s (%s)\n", job.ID, job.FileName)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry a failed or canceled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := deskClient.RetryJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("retry job: %w", err)
		}
		fmt.Printf("Retrying %s (%s), attempt %d\n", job.ID, job.FileName, job.Attempt)
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsCmd.Flags().StringVar(&jobsType, "type", "", "filter by type (ocr, convert)")
	jobsCmd.Flags().StringVar(&jobsDate, "date", "", "filter by creation date (YYYY-MM-DD)")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "print JSON")
	jobsCmd.Flags().BoolVar(&jobsResult, "result", false, "include the recognized text of a done job")
}

func runJobs(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showJob(cmd, args[0])
	}

	jobs, err := deskClient.ListJobs(cmd.Context(), models.JobFilter{
		Status: models.JobStatus(jobsStatus),
		Type:   models.JobType(jobsType),
		Date:   jobsDate,
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if jobsJSON {
		return printJSON(jobs)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-22s %-8s %-22s %-9s %-9s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "CREATED", "FILE")
	fmt.Println("----------------------------------------------------------------------------------------------")
	for _, j := range jobs {
		status := defaultTheme.jobStatusStyle(j.Status).Render(fmt.Sprintf("%-22s", j.Status))
		fmt.Printf("%-22s %-8s %s %-9s %-9s %s\n",
			j.ID, j.Type, status, fmt.Sprintf("%d%%", j.Progress), j.CreatedAt.Local().Format("15:04:05"), j.FileName)
	}
	return nil
}

func showJob(cmd *cobra.Command, id string) error {
	job, err := deskClient.GetJob(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	var res *models.OcrResult
	if jobsResult && job.Status == models.JobStatusDone {
		res, err = deskClient.JobResult(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}
	}

	if jobsJSON {
		return printJSON(struct {
			*models.Job
			Result *models.OcrResult `json:"result,omitempty"`
		}{job, res})
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  File: %s\n", job.FileName)
	fmt.Printf("  Type: %s\n", job.Type)
	fmt.Printf("  Status: %s\n", defaultTheme.jobStatusStyle(job.Status).Render(string(job.Status)))
	fmt.Printf("  Progress: %d%%\n", job.Progress)
	fmt.Printf("  Attempt: %d\n", job.Attempt)
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Message != "" {
		fmt.Printf("  Message: %s\n", job.Message)
	}
	if job.RemoteID != "" {
		fmt.Printf("  Backend job: %s\n", job.RemoteID)
	}
	if job.ResultURL != "" {
		fmt.Printf("  Result: %s\n", job.ResultURL)
	}

	if res != nil {
		fmt.Printf("\nLanguage: %s  Confidence: %.0f%%\n\n", res.Language, res.AvgConfidence*100)
		fmt.Println(res.FullText)
	}
	return nil
}
