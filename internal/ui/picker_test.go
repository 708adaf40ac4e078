package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(m pickerModel, key string) (pickerModel, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(pickerModel), cmd
}

var testDevices = []Option{{Label: "Built-in Mic"}, {Label: "USB Interface"}, {Label: "Loopback"}}

func TestPickerChoosesAndConfirms(t *testing.T) {
	m := newPickerModel(testDevices, 0, []SummaryRow{{Label: "Sensitivity", Value: "1.50"}})

	m, _ = press(m, "down")
	m, _ = press(m, "down")
	m, _ = press(m, "down")
	assert.Equal(t, 0, m.cursor, "cursor wraps")

	m, _ = press(m, "up")
	assert.Equal(t, 2, m.cursor)

	m, _ = press(m, "enter")
	require.Equal(t, stepConfirm, m.step)
	view := ansi.Strip(m.View())
	assert.Contains(t, view, "Loopback")
	assert.Contains(t, view, "Sensitivity: 1.50")

	m, cmd := press(m, "enter")
	assert.Equal(t, stepDone, m.step)
	assert.NotNil(t, cmd)
	assert.Equal(t, 2, m.chosen)
	assert.NoError(t, m.err)
}

func TestPickerBackFromConfirm(t *testing.T) {
	m := newPickerModel(testDevices, 1, nil)
	m, _ = press(m, "enter")
	m, _ = press(m, "b")
	assert.Equal(t, stepChoose, m.step)
	assert.Equal(t, 1, m.cursor)
}

func TestPickerAbort(t *testing.T) {
	m := newPickerModel(testDevices, 5, nil)
	assert.Equal(t, 2, m.cursor, "initial index is clamped")

	m, cmd := press(m, "esc")
	assert.NotNil(t, cmd)
	assert.ErrorIs(t, m.err, ErrSelectionAborted)
}

func TestPickDeviceWithoutDevices(t *testing.T) {
	_, err := PickDevice(nil, 0, nil)
	assert.Error(t, err)
}
