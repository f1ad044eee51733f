package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/tryon/internal/engine/batch"
	"github.com/rshade/tryon/internal/engine/job"
)

// summaryJSON is the machine-readable batch summary.
type summaryJSON struct {
	BatchID       string     `json:"batch_id"`
	Size          int        `json:"size"`
	Succeeded     int        `json:"succeeded"`
	Failed        int        `json:"failed"`
	Cancelled     int        `json:"cancelled"`
	UserCancelled bool       `json:"user_cancelled"`
	ElapsedMS     int64      `json:"elapsed_ms"`
	Jobs          []slotJSON `json:"jobs"`
}

type slotJSON struct {
	Index       int     `json:"index"`
	Temperature float64 `json:"temperature"`
	State       string  `json:"state"`
	Artifact    string  `json:"artifact,omitempty"`
	Error       string  `json:"error,omitempty"`
	Abandoned   bool    `json:"abandoned,omitempty"`
}

func renderSummary(w io.Writer, s batch.Summary, format string) error {
	if format == formatJSON {
		return renderSummaryJSON(w, s)
	}
	return renderSummaryTable(w, s)
}

func renderSummaryJSON(w io.Writer, s batch.Summary) error {
	out := summaryJSON{
		BatchID:       s.BatchID,
		Size:          s.Size,
		Succeeded:     s.Succeeded,
		Failed:        s.Failed,
		Cancelled:     s.Cancelled,
		UserCancelled: s.UserCancelled,
		ElapsedMS:     s.Elapsed.Milliseconds(),
		Jobs:          make([]slotJSON, 0, len(s.Slots)),
	}
	for _, slot := range s.Slots {
		out.Jobs = append(out.Jobs, slotJSON{
			Index:       slot.Index,
			Temperature: slot.Temperature,
			State:       slot.State.String(),
			Artifact:    slot.ArtifactRef,
			Error:       slot.ErrorDetail,
			Abandoned:   slot.Abandoned,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderSummaryTable(w io.Writer, s batch.Summary) error {
	p := message.NewPrinter(language.English)

	verb := "complete"
	if s.UserCancelled {
		verb = "cancelled"
	}
	p.Fprintf(w, "Batch %s %s in %s: %d of %d succeeded, %d failed, %d cancelled\n\n",
		s.BatchID, verb, s.Elapsed.Round(100*time.Millisecond),
		s.Succeeded, s.Size, s.Failed, s.Cancelled)

	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(tw, "JOB\tTEMP\tSTATE\tRESULT")
	fmt.Fprintln(tw, "---\t----\t-----\t------")
	for _, slot := range s.Slots {
		fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\n", slot.Index, slot.Temperature, slot.State, slotResult(slot))
	}
	return tw.Flush()
}

// slotResult is the artifact path, the error, or a note about cancellation.
func slotResult(slot batch.Slot) string {
	switch {
	case slot.ArtifactRef != "":
		return slot.ArtifactRef
	case slot.ErrorDetail != "":
		return slot.ErrorDetail
	case slot.Abandoned:
		return "did not stop in time"
	case slot.State == job.StateCancelled:
		return "-"
	default:
		return ""
	}
}
