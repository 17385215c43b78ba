package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/ocrdesk/internal/client"
	"github.com/raphaelgruber/ocrdesk/internal/models"
)

const pollInterval = 500 * time.Millisecond

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Warn       lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Warn:       lipgloss.Color("#FFAF00"), // amber
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// jobStatusStyle colors a status by outcome.
func (t Theme) jobStatusStyle(s models.JobStatus) lipgloss.Style {
	switch s {
	case models.JobStatusDone:
		return t.completedStyle()
	case models.JobStatusError:
		return t.errorStyle()
	case models.JobStatusCanceled:
		return t.warnStyle()
	default:
		return t.statusStyle()
	}
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobsUpdateMsg carries the latest job list
type jobsUpdateMsg struct {
	jobs []models.Job
	err  error
}

// progressModel is the bubbletea model for a batch's progress.
type progressModel struct {
	client   *client.Client
	ids      []string
	jobs     map[string]models.Job
	evicted  map[string]bool
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, jobs []models.Job) progressModel {
	m := progressModel{
		client:   c,
		jobs:     make(map[string]models.Job, len(jobs)),
		evicted:  make(map[string]bool),
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(30)),
		theme:    defaultTheme,
	}
	for _, j := range jobs {
		m.ids = append(m.ids, j.ID)
		m.jobs[j.ID] = j
	}
	return m
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.progress.Init())
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJobs()

	case jobsUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.merge(msg.jobs)
		if m.finished() {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// merge records the tracked jobs from a full listing. Tracked jobs missing
// from the listing were evicted by newer submissions.
func (m *progressModel) merge(all []models.Job) {
	seen := make(map[string]bool, len(all))
	for _, j := range all {
		if _, tracked := m.jobs[j.ID]; tracked {
			m.jobs[j.ID] = j
			seen[j.ID] = true
		}
	}
	for _, id := range m.ids {
		if !seen[id] {
			m.evicted[id] = true
		}
	}
}

func (m progressModel) finished() bool {
	for _, id := range m.ids {
		if !m.evicted[id] && !m.jobs[id].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// failures lists the tracked jobs that ended in error.
func (m progressModel) failures() []models.Job {
	var out []models.Job
	for _, id := range m.ids {
		if j := m.jobs[id]; j.Status == models.JobStatusError {
			out = append(out, j)
		}
	}
	return out
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	var sb strings.Builder
	for _, id := range m.ids {
		sb.WriteString(m.renderJob(id))
		sb.WriteByte('\n')
	}
	sb.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to continue in background"))
	sb.WriteByte('\n')
	return sb.String()
}

func (m progressModel) renderJob(id string) string {
	j := m.jobs[id]
	if m.evicted[id] {
		return fmt.Sprintf("%s %s", m.theme.hintStyle().Render(fmt.Sprintf("%-12s", "[evicted]")), j.FileName)
	}
	status := m.theme.jobStatusStyle(j.Status).Render(fmt.Sprintf("%-12s", "["+string(j.Status)+"]"))
	bar := m.progress.ViewAs(float64(j.Progress) / 100)
	return fmt.Sprintf("%s %s %3d%% %s", status, bar, j.Progress, j.FileName)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\n%d job(s) continue in background.\nUse 'ocrdesk jobs' to check status.\n", len(m.ids))
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	var sb strings.Builder
	for _, id := range m.ids {
		sb.WriteString(m.renderJob(id))
		sb.WriteByte('\n')
	}
	failed := m.failures()
	if len(failed) == 0 {
		sb.WriteString(m.theme.completedStyle().Render(fmt.Sprintf("✓ %d job(s) finished", len(m.ids))))
		sb.WriteByte('\n')
		return sb.String()
	}
	sb.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("✗ %d of %d job(s) failed:", len(failed), len(m.ids))))
	sb.WriteByte('\n')
	for _, j := range failed {
		fmt.Fprintf(&sb, "  • %s: %s\n", j.FileName, j.Message)
	}
	return sb.String()
}

// fetchJobs runs in a command so Update never blocks on the network.
func (m progressModel) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		jobs, err := m.client.ListJobs(ctx, models.JobFilter{Type: models.JobTypeOCR})
		return jobsUpdateMsg{jobs: jobs, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunBatchProgress runs the interactive progress UI for submitted jobs.
// Returns nil on success or Ctrl+C (background), an error when any job failed.
func RunBatchProgress(c *client.Client, jobs []models.Job) error {
	p := tea.NewProgram(newProgressModel(c, jobs))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
		if failed := m.failures(); len(failed) > 0 {
			return fmt.Errorf("%d of %d job(s) failed", len(failed), len(m.ids))
		}
	}
	return nil
}
