// Package ui renders compile progress in the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	bp "kestrel/internal/buildpipeline"
)

const statusWidth = 10

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type fileRow struct {
	path   string
	stage  bp.Stage
	status bp.Status
	err    error
}

type progressModel struct {
	title   string
	events  <-chan bp.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []fileRow
	index   map[string]int
	width   int
	done    bool
	failed  bool
}

type eventMsg bp.Event
type closedMsg struct{}

// NewProgressModel returns a model that shows one row per file and a bar
// for the whole build. It quits when events is closed.
func NewProgressModel(title string, files []string, events <-chan bp.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = workingStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		rows:    make([]fileRow, len(files)),
		index:   make(map[string]int, len(files)),
		width:   80,
	}
	for i, f := range files {
		m.rows[i] = fileRow{path: f, status: bp.StatusQueued}
		m.index[f] = i
	}
	return m
}

// Run drives the progress view on out until events is closed.
func Run(out io.Writer, title string, files []string, events <-chan bp.Event) error {
	p := tea.NewProgram(NewProgressModel(title, files, events), tea.WithOutput(out), tea.WithInput(nil))
	_, err := p.Run()
	return err
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(bp.Event(msg)), m.next())
	case closedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = max(10, msg.Width-4)
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	header := m.title
	switch {
	case m.done && m.failed:
		header = "failed: " + header
	case m.done:
		header = "done: " + header
	default:
		header = m.spinner.View() + " " + header
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(20, m.width-statusWidth-4)
	for _, r := range m.rows {
		label := rowLabel(r)
		fmt.Fprintf(&b, "  %s %s", styleFor(r.status).Render(fmt.Sprintf("%*s", statusWidth, label)), truncate(r.path, nameWidth))
		if r.err != nil && r.status == bp.StatusError {
			b.WriteString("  " + errorStyle.Render(truncate(firstLine(r.err.Error()), nameWidth)))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if m.done {
		b.WriteString(m.bar.ViewAs(m.fraction()))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteByte('\n')
	return b.String()
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) apply(ev bp.Event) tea.Cmd {
	if ev.File == "" {
		if ev.Status == bp.StatusError {
			m.failed = true
		}
		return nil
	}
	i, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	m.rows[i].stage = ev.Stage
	m.rows[i].status = ev.Status
	if ev.Err != nil {
		m.rows[i].err = ev.Err
		m.failed = true
	}
	return m.bar.SetPercent(m.fraction())
}

// fraction is the share of work done: finished files count fully, files
// in flight by the stages they have reached.
func (m *progressModel) fraction() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	var total float64
	for _, r := range m.rows {
		switch r.status {
		case bp.StatusDone, bp.StatusCached, bp.StatusError:
			total++
		case bp.StatusWorking:
			total += stageWeight(r.stage)
		}
	}
	return total / float64(len(m.rows))
}

func stageWeight(s bp.Stage) float64 {
	for i, st := range bp.Stages {
		if st == s {
			return float64(i) / float64(len(bp.Stages))
		}
	}
	return 0
}

func rowLabel(r fileRow) string {
	if r.status == bp.StatusWorking {
		return string(r.stage)
	}
	return string(r.status)
}

func styleFor(s bp.Status) lipgloss.Style {
	switch s {
	case bp.StatusDone, bp.StatusCached:
		return doneStyle
	case bp.StatusError:
		return errorStyle
	case bp.StatusWorking:
		return workingStyle
	}
	return idleStyle
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
