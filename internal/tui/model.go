package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/tryon/internal/engine/batch"
	"github.com/rshade/tryon/internal/engine/job"
)

// Default dimensions.
const (
	defaultWidth    = 80
	defaultBarWidth = 30
	minBarWidth     = 10
	slotChrome      = 34
)

// Controller is the part of the batch controller the view drives.
type Controller interface {
	StartBatch(ctx context.Context, req batch.Request) (batch.BatchInfo, error)
	CancelBatch(ctx context.Context) error
}

// viewPhase is the view's own notion of where the batch is.
type viewPhase int

const (
	phaseStarting viewPhase = iota
	phaseRunning
	phaseCancelling
	phaseDone
)

func (p viewPhase) String() string {
	switch p {
	case phaseStarting:
		return "starting"
	case phaseRunning:
		return "running"
	case phaseCancelling:
		return "cancelling"
	default:
		return "done"
	}
}

// tickMsg refreshes the elapsed timer.
type tickMsg time.Time

// startResultMsg reports the outcome of a StartBatch command.
type startResultMsg struct {
	err error
}

// cancelResultMsg reports the outcome of a CancelBatch command.
type cancelResultMsg struct {
	err error
}

// BatchModel is the Bubble Tea model for one tryon session. It starts a
// batch on Init and can run it again once the previous one is complete.
type BatchModel struct {
	ctx     context.Context
	ctrl    Controller
	request batch.Request

	styles  Styles
	keys    KeyMap
	help    help.Model
	bar     progress.Model
	spinner spinner.Model

	phase     viewPhase
	info      batch.BatchInfo
	slots     []batch.Slot
	summary   *batch.Summary
	runs      int
	err       error
	startedAt time.Time
	now       func() time.Time

	width    int
	quitting bool
}

// NewBatchModel returns a model that will start req on Init. The controller
// is attached with SetController before the program runs, because the
// controller's sink needs the program.
func NewBatchModel(ctx context.Context, req batch.Request) *BatchModel {
	m := &BatchModel{
		ctx:     ctx,
		request: req,
		styles:  DefaultStyles(),
		keys:    DefaultKeyMap(),
		help:    help.New(),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(defaultBarWidth),
		),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		phase:   phaseStarting,
		now:     time.Now,
		width:   defaultWidth,
	}
	m.keys.setRunning(true)
	return m
}

// SetController attaches the controller the model drives.
func (m *BatchModel) SetController(ctrl Controller) {
	m.ctrl = ctrl
}

// Summary returns the last completed batch summary, or nil.
func (m *BatchModel) Summary() *batch.Summary {
	return m.summary
}

// Err returns the last start or cancel error.
func (m *BatchModel) Err() error {
	return m.err
}

// Quitting reports whether the user asked to quit.
func (m *BatchModel) Quitting() bool {
	return m.quitting
}

// Runs returns how many batches the model has started.
func (m *BatchModel) Runs() int {
	return m.runs
}

// Slots returns a copy of the slots being displayed.
func (m *BatchModel) Slots() []batch.Slot {
	out := make([]batch.Slot, len(m.slots))
	copy(out, m.slots)
	return out
}

// Init implements tea.Model.
func (m *BatchModel) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// startCmd runs StartBatch off the program goroutine; the controller's sink
// sends back into the program and would deadlock otherwise.
func (m *BatchModel) startCmd() tea.Cmd {
	ctx, ctrl, req := m.ctx, m.ctrl, m.request
	m.runs++
	return func() tea.Msg {
		if ctrl == nil {
			return startResultMsg{err: batch.ErrMissingDependency}
		}
		_, err := ctrl.StartBatch(ctx, req)
		return startResultMsg{err: err}
	}
}

func (m *BatchModel) cancelCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		if ctrl == nil {
			return cancelResultMsg{}
		}
		return cancelResultMsg{err: ctrl.CancelBatch(ctx)}
	}
}

// resetSlots lays out info.Size pending slots.
func (m *BatchModel) resetSlots(info batch.BatchInfo) {
	m.slots = make([]batch.Slot, info.Size)
	for i := range m.slots {
		m.slots[i] = batch.Slot{Index: i, State: job.StatePending}
		if i < len(info.Temperatures) {
			m.slots[i].Temperature = info.Temperatures[i]
		}
	}
}

func (m *BatchModel) slot(index int) *batch.Slot {
	if index < 0 || index >= len(m.slots) {
		return nil
	}
	return &m.slots[index]
}

func (m *BatchModel) counts() (succeeded, failed, running, pending int) {
	for _, s := range m.slots {
		switch s.State {
		case job.StateSucceeded:
			succeeded++
		case job.StateFailed:
			failed++
		case job.StateRunning:
			running++
		case job.StatePending:
			pending++
		case job.StateCancelled:
		}
	}
	return succeeded, failed, running, pending
}
