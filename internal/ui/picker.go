package ui

import (
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"golang.org/x/term"

	"github.com/cybre/beatviz/internal/utils"
)

var (
	ErrSelectionAborted = eris.New("selection aborted")
	ErrNoInteractiveTTY = eris.New("no interactive terminal available")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213")).
			Bold(true)
	pointerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213"))
	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
	selectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("219")).
				Bold(true)
	instructionKeyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("213")).
				Bold(true)
	instructionTextStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
	instructionDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
	summaryLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("246"))
	summaryValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Bold(true)
	emptyStateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// Option is one selectable input device.
type Option struct {
	Label string
}

// SummaryRow is shown on the confirm screen next to the chosen device.
type SummaryRow struct {
	Label string
	Value string
}

// PickDevice lets the user choose an input device and confirm the session
// settings. It returns ErrNoInteractiveTTY when stdin or stdout is not a
// terminal so callers can fall back to a default.
func PickDevice(devices []Option, initial int, summary []SummaryRow) (int, error) {
	if len(devices) == 0 {
		return 0, eris.New("no input devices to choose from")
	}
	if !isInteractiveTerminal() {
		return 0, ErrNoInteractiveTTY
	}

	final, err := tea.NewProgram(newPickerModel(devices, initial, summary)).Run()
	if err != nil {
		return 0, eris.Wrap(err, "run device picker")
	}

	m := final.(pickerModel)
	if m.err != nil {
		return 0, m.err
	}
	return m.chosen, nil
}

type pickerStep int

const (
	stepChoose pickerStep = iota
	stepConfirm
	stepDone
)

type pickerModel struct {
	step    pickerStep
	devices []Option
	summary []SummaryRow
	cursor  int
	chosen  int
	err     error
}

func newPickerModel(devices []Option, initial int, summary []SummaryRow) pickerModel {
	idx := utils.ClampIndex(initial, len(devices))
	return pickerModel{
		devices: devices,
		summary: summary,
		cursor:  idx,
		chosen:  idx,
	}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.step == stepDone {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.err = ErrSelectionAborted
		return m, tea.Quit
	case "up", "k":
		if m.step == stepChoose {
			m.cursor = wrapIndex(m.cursor-1, len(m.devices))
		}
	case "down", "j":
		if m.step == stepChoose {
			m.cursor = wrapIndex(m.cursor+1, len(m.devices))
		}
	case "enter", "tab", "right", "l":
		switch m.step {
		case stepChoose:
			m.chosen = m.cursor
			m.step = stepConfirm
		case stepConfirm:
			if key.String() == "enter" {
				m.step = stepDone
				return m, tea.Quit
			}
		}
	case "backspace", "b", "left", "h", "shift+tab":
		if m.step == stepConfirm {
			m.step = stepChoose
			m.cursor = m.chosen
		}
	}

	return m, nil
}

func (m pickerModel) View() string {
	switch m.step {
	case stepChoose:
		return strings.Join([]string{
			"",
			titleStyle.Render("Select an audio input device"),
			"",
			renderOptionList(m.devices, m.cursor),
			"",
			renderInstructions([]string{"↑/k ↓/j move", "enter choose", "esc cancel"}),
			"",
		}, "\n")
	case stepConfirm:
		lines := []string{
			"",
			titleStyle.Render("Ready to listen"),
			"",
			renderSummaryRow("Device", m.devices[m.chosen].Label),
		}
		for _, row := range m.summary {
			lines = append(lines, renderSummaryRow(row.Label, row.Value))
		}
		lines = append(lines,
			"",
			renderInstructions([]string{"enter start", "←/h/b/backspace back", "esc cancel"}),
			"",
		)
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}

func renderOptionList(items []Option, cursor int) string {
	if len(items) == 0 {
		return emptyStateStyle.Render("No input devices detected")
	}

	rows := make([]string, len(items))
	for i, item := range items {
		pointer, label := " ", itemStyle.Render(item.Label)
		if i == cursor {
			pointer, label = pointerStyle.Render("›"), selectedItemStyle.Render(item.Label)
		}
		rows[i] = lipgloss.JoinHorizontal(lipgloss.Left, pointer, " ", label)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderInstructions renders "keys... action" hints separated by dots; every
// token but the last of a hint is a key.
func renderInstructions(parts []string) string {
	var segments []string
	for i, part := range parts {
		if i > 0 {
			segments = append(segments, instructionDividerStyle.Render(" · "))
		}
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		last := len(tokens) - 1
		if last > 0 {
			segments = append(segments, instructionKeyStyle.Render(strings.Join(tokens[:last], " ")), " ")
		}
		segments = append(segments, instructionTextStyle.Render(tokens[last]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, segments...)
}

func renderSummaryRow(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		summaryLabelStyle.Render(label+": "),
		summaryValueStyle.Render(value),
	)
}

func wrapIndex(idx, length int) int {
	if length <= 0 {
		return 0
	}
	idx %= length
	if idx < 0 {
		idx += length
	}
	return idx
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
