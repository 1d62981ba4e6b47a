package ui

import (
	"fmt"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// SafeModel wraps a tea.Model so a panic in the UI never takes the trading
// session down with it.
type SafeModel struct {
	model  tea.Model
	logger *zap.Logger
	failed bool
}

// NewSafeModel wraps model.
func NewSafeModel(model tea.Model, logger *zap.Logger) *SafeModel {
	return &SafeModel{
		model:  model,
		logger: logger.Named("ui"),
	}
}

func (sm *SafeModel) Init() (cmd tea.Cmd) {
	defer sm.recoverFromPanic("Init", &cmd)
	return sm.model.Init()
}

func (sm *SafeModel) Update(msg tea.Msg) (_ tea.Model, cmd tea.Cmd) {
	defer sm.recoverFromPanic("Update", &cmd)
	if sm.failed {
		if k, ok := msg.(tea.KeyMsg); ok && (k.String() == "ctrl+c" || k.String() == "q") {
			return sm, tea.Quit
		}
		return sm, nil
	}
	sm.model, cmd = sm.model.Update(msg)
	return sm, cmd
}

func (sm *SafeModel) View() (view string) {
	if sm.failed {
		return "UI error: the dashboard crashed, trading continues. Press q to exit."
	}
	defer func() {
		if r := recover(); r != nil {
			sm.logPanic("View", r)
			sm.failed = true
			view = fmt.Sprintf("UI error: %v. Press q to exit.", r)
		}
	}()
	return sm.model.View()
}

// Failed reports whether a panic has been recovered.
func (sm *SafeModel) Failed() bool {
	return sm.failed
}

func (sm *SafeModel) recoverFromPanic(method string, cmd *tea.Cmd) {
	if r := recover(); r != nil {
		sm.logPanic(method, r)
		sm.failed = true
		*cmd = nil
	}
}

func (sm *SafeModel) logPanic(method string, r any) {
	sm.logger.Error("UI panic recovered",
		zap.String("method", method),
		zap.Any("panic", r),
		zap.String("stack", string(debug.Stack())))
}
