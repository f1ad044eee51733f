package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rshade/tryon/internal/engine/batch"
	"github.com/rshade/tryon/internal/engine/job"
)

const percentScale = 100.0

// View implements tea.Model.
func (m *BatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	for _, s := range m.slots {
		b.WriteString(m.renderSlot(s))
		b.WriteString("\n")
	}
	if len(m.slots) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	if m.summary != nil {
		b.WriteString(m.styles.Summary.Render(RenderSummary(*m.summary)))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(m.styles.ErrorBox.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *BatchModel) renderHeader() string {
	parts := []string{m.styles.Title.Render("tryon")}
	if !m.startedAt.IsZero() {
		end := m.now()
		if m.summary != nil {
			end = m.startedAt.Add(m.summary.Elapsed)
		}
		parts = append(parts, m.styles.Timer.Render("["+formatDuration(end.Sub(m.startedAt))+"]"))
	}
	if m.info.ID != "" {
		parts = append(parts, m.styles.Muted.Render(
			fmt.Sprintf("batch %s · %d jobs · stagger %s", shortID(m.info.ID), m.info.Size, m.info.Stagger)))
	}

	phase := m.styles.Phase.Render(m.phase.String())
	if m.phase != phaseDone {
		phase = m.spinner.View() + " " + phase
	}
	parts = append(parts, phase)
	return strings.Join(parts, "  ")
}

func (m *BatchModel) renderSlot(s batch.Slot) string {
	index := m.styles.Index.Render(fmt.Sprintf("#%d", s.Index))
	temp := m.styles.Muted.Render(fmt.Sprintf("t=%.2f", s.Temperature))

	var icon, detail string
	switch s.State {
	case job.StatePending:
		icon = m.styles.Muted.Render(IconPending)
		detail = m.styles.Muted.Render("waiting")
	case job.StateRunning:
		icon = m.styles.Running.Render(IconRunning)
		if m.phase == phaseCancelling {
			detail = m.styles.Warning.Render("cancelling")
		}
	case job.StateSucceeded:
		icon = m.styles.Success.Render(IconSucceeded)
		detail = m.styles.Success.Render(s.ArtifactRef)
	case job.StateFailed:
		icon = m.styles.Failure.Render(IconFailed)
		detail = m.styles.Failure.Render(s.ErrorDetail)
	case job.StateCancelled:
		icon = m.styles.Muted.Render(IconCancelled)
		detail = m.styles.Muted.Render("cancelled")
		if s.Abandoned {
			detail = m.styles.Warning.Render("abandoned")
		}
	}

	bar := m.bar.ViewAs(float64(s.Progress) / percentScale)
	return lipgloss.JoinHorizontal(lipgloss.Top, index, " ", icon, " ", temp, " ", bar, " ", detail)
}

func (m *BatchModel) renderStatusLine() string {
	succeeded, failed, running, pending := m.counts()
	return fmt.Sprintf("  %s | %s | %s | %s",
		m.styles.Success.Render(fmt.Sprintf("%d succeeded", succeeded)),
		m.styles.Failure.Render(fmt.Sprintf("%d failed", failed)),
		m.styles.Running.Render(fmt.Sprintf("%d running", running)),
		m.styles.Muted.Render(fmt.Sprintf("%d waiting", pending)),
	)
}

// RenderSummary renders a completed batch as plain lines.
func RenderSummary(s batch.Summary) string {
	var b strings.Builder
	title := "Batch complete"
	if s.UserCancelled {
		title = "Batch cancelled"
	}
	fmt.Fprintf(&b, "%s in %s\n", title, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "%d of %d succeeded, %d failed, %d cancelled", s.Succeeded, s.Size, s.Failed, s.Cancelled)
	for _, ref := range s.Artifacts() {
		fmt.Fprintf(&b, "\n  %s", ref)
	}
	return b.String()
}

// formatDuration formats d as HH:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
}

func shortID(id string) string {
	const keep = 10
	if len(id) <= keep {
		return id
	}
	return id[len(id)-keep:]
}
