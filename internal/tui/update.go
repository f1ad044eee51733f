package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/tryon/internal/engine/job"
)

// Update implements tea.Model.
func (m *BatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = max(minBarWidth, min(msg.Width-slotChrome, defaultBarWidth*2))
		return m, nil

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startResultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.phase = phaseDone
			m.keys.setRunning(false)
		}
		return m, nil

	case cancelResultMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case BatchStartedMsg:
		m.info = msg.Info
		m.startedAt = msg.Info.StartedAt
		if m.startedAt.IsZero() {
			m.startedAt = m.now()
		}
		m.resetSlots(msg.Info)
		m.summary = nil
		m.err = nil
		m.phase = phaseRunning
		m.keys.setRunning(true)
		return m, nil

	case ProgressMsg:
		if s := m.slot(msg.Index); s != nil && !s.State.IsTerminal() {
			s.State = job.StateRunning
			s.Progress = max(s.Progress, msg.Percent)
		}
		return m, nil

	case TerminalMsg:
		if s := m.slot(msg.Index); s != nil && !s.State.IsTerminal() {
			if msg.Outcome.Success() {
				s.State = job.StateSucceeded
				s.Progress = job.ProgressDone
				s.ArtifactRef = msg.Outcome.ArtifactRef
			} else {
				s.State = job.StateFailed
				s.ErrorDetail = msg.Outcome.ErrorDetail
			}
		}
		return m, nil

	case CompleteMsg:
		summary := msg.Summary
		m.summary = &summary
		if len(summary.Slots) > 0 {
			m.slots = summary.Slots
		}
		m.phase = phaseDone
		m.keys.setRunning(false)
		return m, nil
	}

	return m, nil
}

func (m *BatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.phase != phaseRunning {
			return m, nil
		}
		m.phase = phaseCancelling
		m.keys.Cancel.SetEnabled(false)
		return m, m.cancelCmd()

	case key.Matches(msg, m.keys.Retry):
		if m.phase != phaseDone {
			return m, nil
		}
		m.phase = phaseStarting
		m.keys.setRunning(true)
		m.keys.Cancel.SetEnabled(false)
		return m, m.startCmd()
	}
	return m, nil
}
