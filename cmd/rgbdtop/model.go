package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mUogoro/rgbd-grabber/preview"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

// Grabber is what the monitor reads from a session.
type Grabber interface {
	preview.Source
	ID() string
	Stats() rgbd.Stats
	InSync() bool
	SkewTolerance() time.Duration
}

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	syncStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	outSyncStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

type snapshotMsg struct {
	path string
	err  error
}

// rate is a published count seen at a point in time.
type rate struct {
	at    time.Time
	count uint64
	fps   float64
}

func (r rate) next(now time.Time, count uint64) rate {
	if r.at.IsZero() {
		return rate{at: now, count: count}
	}
	elapsed := now.Sub(r.at).Seconds()
	if elapsed <= 0 {
		return r
	}
	return rate{at: now, count: count, fps: float64(count-r.count) / elapsed}
}

type Model struct {
	grabber     Grabber
	interval    time.Duration
	previewPath string
	width       int
	currentTime time.Time
	stats       rgbd.Stats
	skew        time.Duration
	hasSkew     bool
	inSync      bool
	depthRate   rate
	colorRate   rate
	status      string
}

func NewModel(g Grabber, interval time.Duration, previewPath string) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{
		grabber:     g,
		interval:    interval,
		previewPath: previewPath,
		width:       80,
		status:      "waiting for first sample",
	}
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Every(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) snapshotCmd() tea.Cmd {
	g, path := m.grabber, m.previewPath
	return func() tea.Msg {
		return snapshotMsg{path: path, err: preview.Save(path, g, 0)}
	}
}

func (m Model) sample(now time.Time) Model {
	m.currentTime = now
	m.stats = m.grabber.Stats()
	m.skew, m.hasSkew = m.grabber.Skew()
	m.inSync = m.grabber.InSync()
	m.depthRate = m.depthRate.next(now, m.stats.Depth.Published)
	m.colorRate = m.colorRate.next(now, m.stats.Color.Published)
	m.status = "streaming"
	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m.sample(time.Time(msg)), m.tickCmd()

	case snapshotMsg:
		if msg.err != nil {
			m.status = "snapshot failed: " + msg.err.Error()
		} else {
			m.status = "snapshot saved to " + msg.path
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			if m.previewPath != "" {
				m.status = "saving snapshot"
				return m, m.snapshotCmd()
			}
		}
	}

	return m, nil
}

func streamLine(name string, g rgbd.Geometry, s rgbd.SlotStats, r rate) string {
	if g.Pixels() == 0 {
		return fmt.Sprintf("%-6s disabled", name)
	}
	return fmt.Sprintf("%-6s %4dx%-4d %-9s %6.1f fps  published %-8d dropped %-6d last %d",
		name, g.Width, g.Height, g.Format, r.fps, s.Published, s.Dropped, s.Last)
}

func (m Model) View() string {
	header := headerStyle.Width(m.width).Render(
		fmt.Sprintf("rgbd %s  %s  %s", m.grabber.ID(), m.stats.State, m.currentTime.Format(time.TimeOnly)),
	)

	lines := []string{
		streamLine("depth", m.grabber.DepthGeometry(), m.stats.Depth, m.depthRate),
		streamLine("color", m.grabber.ColorGeometry(), m.stats.Color, m.colorRate),
	}

	if m.hasSkew {
		style := outSyncStyle
		if m.inSync {
			style = syncStyle
		}
		lines = append(lines, style.Render(fmt.Sprintf("skew   %s (tolerance %s)", m.skew, m.grabber.SkewTolerance())))
	} else {
		lines = append(lines, "skew   n/a")
	}

	statusBar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf("%s | s: snapshot | q: quit", m.status),
	)

	return fmt.Sprintf("%s\n\n%s\n\n%s", header, strings.Join(lines, "\n"), statusBar)
}
