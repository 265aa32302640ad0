package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer provides rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if the output is not a TTY.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newIngestModel()
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	_, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddWarning implements Renderer.
func (r *TUIRenderer) AddWarning(event WarningEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(warningMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}
	if r.program != nil {
		r.program.Quit()
	}
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		if r.program != nil {
			r.program.Kill()
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type progressUpdateMsg ProgressEvent

type warningMsg WarningEvent

type completeMsg CompletionStats

// maxVisibleWarnings bounds the warning tail so the view stays stable.
const maxVisibleWarnings = 3

type ingestModel struct {
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	event    ProgressEvent
	warnings []WarningEvent
	stats    *CompletionStats
	width    int
}

func newIngestModel() *ingestModel {
	styles := DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan))

	bar := progress.New(progress.WithDefaultGradient())

	return &ingestModel{
		styles:  styles,
		spinner: sp,
		bar:     bar,
		width:   80,
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progressUpdateMsg:
		m.event = ProgressEvent(msg)
	case warningMsg:
		m.warnings = append(m.warnings, WarningEvent(msg))
	case completeMsg:
		stats := CompletionStats(msg)
		m.stats = &stats
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Header.Render("manualqa ingest"))
	sb.WriteString("\n\n")

	if m.stats != nil {
		fmt.Fprintf(&sb, "%s %s\n", m.styles.Success.Render("Done:"),
			fmt.Sprintf("%d pages, %d chunks (%d visual) in %s",
				m.stats.Pages, m.stats.Chunks, m.stats.VisualChunks,
				m.stats.Duration.Round(100*time.Millisecond)))
		if m.stats.Warnings > 0 {
			fmt.Fprintf(&sb, "%s %d warnings\n", m.styles.Warning.Render("!"), m.stats.Warnings)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "%s %s", m.spinner.View(), m.styles.Stage.Render(m.event.Stage.String()))
	if m.event.Message != "" {
		fmt.Fprintf(&sb, " %s", m.styles.Label.Render(m.event.Message))
	}
	sb.WriteString("\n")

	if m.event.Total > 0 {
		pct := float64(m.event.Current) / float64(m.event.Total)
		fmt.Fprintf(&sb, "%s %d/%d\n", m.bar.ViewAs(pct), m.event.Current, m.event.Total)
	}

	if len(m.warnings) > 0 {
		sb.WriteString("\n")
		start := 0
		if len(m.warnings) > maxVisibleWarnings {
			start = len(m.warnings) - maxVisibleWarnings
		}
		for _, w := range m.warnings[start:] {
			fmt.Fprintf(&sb, "%s %s\n", m.styles.Warning.Render("WARN"), w.Message)
		}
	}

	return sb.String()
}
