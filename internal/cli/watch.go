package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/ocrdesk/internal/client"
	"github.com/raphaelgruber/ocrdesk/internal/server"
	"github.com/spf13/cobra"
)

var (
	watchJob  string
	watchJSON bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream job updates and notifications",
	Long: `Stream job updates and toast notifications from the desk server until
interrupted. With --job the stream ends once that job finishes.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchJob, "job", "", "only show this job and stop when it finishes")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print raw events as JSON")
}

func runWatch(cmd *cobra.Command, args []string) error {
	err := deskClient.WatchJobs(cmd.Context(), func(m server.Message) error {
		if watchJob != "" && (m.Job == nil || m.Job.ID != watchJob) {
			return nil
		}
		if watchJSON {
			if err := printJSON(m); err != nil {
				return err
			}
		} else {
			fmt.Println(formatMessage(m))
		}
		if watchJob != "" && m.Job.Status.IsTerminal() {
			return client.ErrStopWatching
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func formatMessage(m server.Message) string {
	ts := defaultTheme.hintStyle().Render(m.Timestamp.Local().Format("15:04:05"))
	switch {
	case m.Type == server.MessageJobUpdate && m.Job != nil:
		j := m.Job
		status := defaultTheme.jobStatusStyle(j.Status).Render(string(j.Status))
		line := fmt.Sprintf("%s %s %s %d%% %s", ts, j.ID, status, j.Progress, j.FileName)
		if j.Message != "" {
			line += defaultTheme.hintStyle().Render(" · " + j.Message)
		}
		return line
	case m.Type == server.MessageToast && m.Toast != nil:
		return fmt.Sprintf("%s [%s %s] %s", ts, m.ToastKind, m.Toast.Type, m.Toast.Message)
	default:
		return fmt.Sprintf("%s %s", ts, m.Type)
	}
}
