package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type panicModel struct {
	panicOnUpdate bool
	panicOnView   bool
	updates       int
}

func (m *panicModel) Init() tea.Cmd { return nil }

func (m *panicModel) Update(tea.Msg) (tea.Model, tea.Cmd) {
	m.updates++
	if m.panicOnUpdate {
		panic("update panic test")
	}
	return m, nil
}

func (m *panicModel) View() string {
	if m.panicOnView {
		panic("view panic test")
	}
	return "ok"
}

func TestSafeModelPassesThrough(t *testing.T) {
	inner := &panicModel{}
	sm := NewSafeModel(inner, zap.NewNop())

	model, cmd := sm.Update(TickMsg{})
	assert.Same(t, sm, model)
	assert.Nil(t, cmd)
	assert.Equal(t, 1, inner.updates)
	assert.Equal(t, "ok", sm.View())
	assert.False(t, sm.Failed())
}

func TestSafeModelRecoversUpdatePanic(t *testing.T) {
	sm := NewSafeModel(&panicModel{panicOnUpdate: true}, zap.NewNop())

	assert.NotPanics(t, func() { sm.Update(TickMsg{}) })
	assert.True(t, sm.Failed())
	assert.Contains(t, sm.View(), "trading continues")

	_, cmd := sm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestSafeModelRecoversViewPanic(t *testing.T) {
	sm := NewSafeModel(&panicModel{panicOnView: true}, zap.NewNop())

	var view string
	assert.NotPanics(t, func() { view = sm.View() })
	assert.Contains(t, view, "view panic test")
	assert.True(t, sm.Failed())
}
