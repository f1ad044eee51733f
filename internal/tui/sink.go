package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/tryon/internal/engine/batch"
)

// BatchStartedMsg is sent when the controller starts a batch.
type BatchStartedMsg struct {
	Info batch.BatchInfo
}

// ProgressMsg carries one job's progress.
type ProgressMsg struct {
	Index   int
	Percent int
}

// TerminalMsg carries one job's terminal outcome.
type TerminalMsg struct {
	Index   int
	Outcome batch.Outcome
}

// CompleteMsg is sent once when a batch completes.
type CompleteMsg struct {
	Summary batch.Summary
}

// Sender is the part of *tea.Program the sink needs.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramSink forwards controller notifications to a Bubble Tea program.
// Send blocks until the program reads the message, so the model must never
// call the controller synchronously from Update; it uses commands instead.
type ProgramSink struct {
	program Sender
}

// NewProgramSink returns a sink that forwards to program.
func NewProgramSink(program Sender) *ProgramSink {
	return &ProgramSink{program: program}
}

func (s *ProgramSink) OnBatchStarted(info batch.BatchInfo) {
	s.program.Send(BatchStartedMsg{Info: info})
}

func (s *ProgramSink) OnProgress(index, percent int) {
	s.program.Send(ProgressMsg{Index: index, Percent: percent})
}

func (s *ProgramSink) OnTerminal(index int, outcome batch.Outcome) {
	s.program.Send(TerminalMsg{Index: index, Outcome: outcome})
}

func (s *ProgramSink) OnBatchComplete(summary batch.Summary) {
	s.program.Send(CompleteMsg{Summary: summary})
}
