package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/crazy3lf/colorconv"

	"github.com/cybre/beatviz/internal/reaction"
	"github.com/cybre/beatviz/internal/session"
	"github.com/cybre/beatviz/internal/utils"
)

type Visualizer struct {
	program   *tea.Program
	mu        sync.Mutex
	lastSend  time.Time
	lastBeat  bool
	beats     uint64
	throttle  time.Duration
	closeOnce sync.Once
	done      chan struct{}
}

type frameMsg struct {
	frame      session.Frame
	beats      uint64
	receivedAt time.Time
}

type noticeMsg struct {
	text string
	at   time.Time
}

type visualizerModel struct {
	frame       session.Frame
	beats       uint64
	notice      string
	noticeAt    time.Time
	lastUpdated time.Time
	ready       bool
	particles   []reaction.Particle
	onExit      func()
	exitOnce    sync.Once
}

var (
	vizContainerStyle    = lipgloss.NewStyle().Padding(0, 2)
	vizTimestampStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	vizMetricLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	vizMetricValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	vizBeatActiveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197")).Bold(true)
	vizBeatInactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	vizWaitingStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	vizNoticeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	vizHintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

const (
	vizBarWidth   = 32
	renderLatency = 30 * time.Millisecond
	noticeTTL     = 5 * time.Second
)

// NewVisualizer starts the terminal program. The particle field is drawn
// around the sphere on every frame. onExit runs once when the user quits with
// q, esc or ctrl+c.
func NewVisualizer(particles []reaction.Particle, onExit func()) *Visualizer {
	model := &visualizerModel{particles: particles, onExit: onExit}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithoutSignalHandler())

	v := &Visualizer{
		program:  program,
		throttle: renderLatency,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(v.done)
		_, _ = program.Run()
	}()

	return v
}

func (v *Visualizer) Name() string { return "terminal" }

// Render forwards the frame to the terminal. Frames are throttled, except
// that a change of beat state is always drawn.
func (v *Visualizer) Render(_ context.Context, frame session.Frame) error {
	v.mu.Lock()
	if frame.State.Beat {
		v.beats++
	}
	changed := frame.State.Beat != v.lastBeat
	if !changed && time.Since(v.lastSend) < v.throttle {
		v.mu.Unlock()
		return nil
	}
	v.lastSend = time.Now()
	v.lastBeat = frame.State.Beat
	beats := v.beats
	v.mu.Unlock()

	v.program.Send(frameMsg{frame: frame, beats: beats, receivedAt: time.Now()})
	return nil
}

func (v *Visualizer) Notice(_ context.Context, msg string) {
	v.program.Send(noticeMsg{text: msg, at: time.Now()})
}

// Close stops the program and restores the terminal.
func (v *Visualizer) Close() error {
	v.closeOnce.Do(func() {
		v.program.Quit()
		<-v.done
	})
	return nil
}

func (m *visualizerModel) Init() tea.Cmd {
	return nil
}

func (m *visualizerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = msg.frame
		m.beats = msg.beats
		m.lastUpdated = msg.receivedAt
		m.ready = true
	case noticeMsg:
		m.notice = msg.text
		m.noticeAt = msg.at
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.invokeExit()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *visualizerModel) View() string {
	var body string
	if !m.ready {
		body = lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("beatviz"),
			"",
			vizWaitingStyle.Render("Waiting for audio frames…"),
		)
	} else {
		body = renderVisualizerView(m.frame, m.beats, m.lastUpdated, m.particles)
	}

	if m.notice != "" && time.Since(m.noticeAt) < noticeTTL {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", vizNoticeStyle.Render("! "+m.notice))
	}
	return vizContainerStyle.Render(body)
}

func renderVisualizerView(frame session.Frame, beats uint64, updatedAt time.Time, particles []reaction.Particle) string {
	title := titleStyle.
		Foreground(lipgloss.Color(frame.State.Color.Hex())).
		Render("beatviz")
	header := lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", vizTimestampStyle.Render(updatedAt.Format("15:04:05.000")))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		renderMetrics(frame, beats),
		"",
		renderSphere(frame.State, particles),
		"",
		renderBars(frame),
		"",
		vizHintStyle.Render("Press q / esc / ctrl+c to stop"),
	)
}

func renderMetrics(frame session.Frame, beats uint64) string {
	marker := vizBeatInactiveStyle.Render("○")
	if frame.State.Beat {
		marker = vizBeatActiveStyle.Render("●")
	}

	return lipgloss.JoinHorizontal(lipgloss.Left,
		vizMetricLabelStyle.Render("Beat:"), " ", marker,
		"   ", renderMetric("Beats", fmt.Sprintf("%d", beats)),
		"   ", renderMetric("Scale", fmt.Sprintf("%.2f", frame.State.Scale)),
		"   ", renderMetric("Color", frame.State.Color.Hex()),
		"   ", renderMetric("Frame", fmt.Sprintf("%d", frame.Seq)),
	)
}

func renderMetric(label, value string) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		vizMetricLabelStyle.Render(label+":"),
		" ",
		vizMetricValueStyle.Render(value),
	)
}

// renderBars shows energy against the rolling baseline and the beat
// threshold, all on the byte scale.
func renderBars(frame session.Frame) string {
	return strings.Join([]string{
		renderBar("Energy", frame.Result.Energy, energyTheme),
		renderBar("Baseline", frame.Result.Baseline, baselineTheme),
		renderBar("Threshold", frame.Result.Threshold, thresholdTheme),
	}, "\n")
}

func renderBar(label string, value float64, theme barTheme) string {
	clamped := utils.Clamp(value/255, 0.0, 1.0)
	filled := min(int(math.Round(clamped*vizBarWidth)), vizBarWidth)
	if clamped > 0 && filled == 0 {
		filled = 1
	}

	var b strings.Builder
	b.Grow(128)
	b.WriteString(theme.LabelStyle.Render(fmt.Sprintf("%-10s", label)))
	b.WriteString(" [")

	steps := max(filled-1, 1)
	for i := range filled {
		progress := float64(i) / float64(steps)
		hue := theme.HueStart + (theme.HueEnd-theme.HueStart)*progress
		val := utils.Clamp(theme.ValueBase+theme.ValueSpan*progress, 0.0, 1.0)
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color(hexColorFromHSV(hue, theme.Saturation, val))).
			Render("█"))
	}
	if empty := vizBarWidth - filled; empty > 0 {
		b.WriteString(theme.EmptyStyle.Render(strings.Repeat("░", empty)))
	}

	b.WriteString("] ")
	b.WriteString(theme.ValueStyle.Render(fmt.Sprintf("%6.2f", value)))
	return b.String()
}

type barTheme struct {
	LabelStyle lipgloss.Style
	ValueStyle lipgloss.Style
	EmptyStyle lipgloss.Style

	HueStart   float64
	HueEnd     float64
	Saturation float64
	ValueBase  float64
	ValueSpan  float64
}

var (
	energyTheme = barTheme{
		LabelStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true),
		ValueStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		EmptyStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		HueStart:   190,
		HueEnd:     140,
		Saturation: 0.85,
		ValueBase:  0.35,
		ValueSpan:  0.55,
	}
	baselineTheme = barTheme{
		LabelStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		ValueStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		EmptyStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("236")),
		HueStart:   210,
		HueEnd:     210,
		Saturation: 0.6,
		ValueBase:  0.35,
		ValueSpan:  0.45,
	}
	thresholdTheme = barTheme{
		LabelStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true),
		ValueStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("213")),
		EmptyStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("237")),
		HueStart:   330,
		HueEnd:     360,
		Saturation: 0.9,
		ValueBase:  0.4,
		ValueSpan:  0.55,
	}
)

func hexColorFromHSV(h, s, v float64) string {
	s = utils.Clamp(s, 0.0, 1.0)
	v = utils.Clamp(v, 0.0, 1.0)
	r, g, b, err := colorconv.HSVToRGB(math.Mod(h, 360), s, v)
	if err != nil {
		return "#FFFFFF"
	}
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func (m *visualizerModel) invokeExit() {
	m.exitOnce.Do(func() {
		if m.onExit != nil {
			m.onExit()
		}
	})
}

var _ session.Renderer = (*Visualizer)(nil)
