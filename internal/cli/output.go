package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/velmie/changesync"
)

type statusView struct {
	State     string `json:"state"`
	Online    bool   `json:"online"`
	Pending   int    `json:"pending"`
	Retrying  int    `json:"retrying"`
	Delayed   int    `json:"delayed"`
	Failed    int    `json:"failed"`
	Succeeded int    `json:"succeeded"`
	Watermark int64  `json:"watermark"`
}

type passView struct {
	Selected  int     `json:"selected"`
	Groups    int     `json:"groups"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Retried   int     `json:"retried"`
	Watermark int64   `json:"watermark"`
	Seconds   float64 `json:"duration_seconds"`
}

type maintenanceView struct {
	Deleted   int64 `json:"deleted"`
	OldFailed int   `json:"old_failed"`
	Vacuumed  bool  `json:"vacuumed"`
}

type enqueueView struct {
	TransactionID string  `json:"transaction_id"`
	IDs           []int64 `json:"ids"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func renderStatus(w io.Writer, format string, snap changesync.Snapshot) error {
	view := statusView{
		State:     snap.State.String(),
		Online:    snap.Online,
		Pending:   snap.Pending,
		Retrying:  snap.Retrying,
		Delayed:   snap.Delayed,
		Failed:    snap.Failed,
		Succeeded: snap.Succeeded,
		Watermark: snap.Watermark,
	}
	if format == FormatJSON {
		return writeJSON(w, view)
	}

	connectivity := "offline"
	if view.Online {
		connectivity = "online"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "state:\t%s\n", view.State)
	fmt.Fprintf(tw, "remote:\t%s\n", connectivity)
	fmt.Fprintf(tw, "pending:\t%d\n", view.Pending)
	fmt.Fprintf(tw, "retrying:\t%d\n", view.Retrying)
	fmt.Fprintf(tw, "delayed:\t%d\n", view.Delayed)
	fmt.Fprintf(tw, "failed:\t%d\n", view.Failed)
	fmt.Fprintf(tw, "synced:\t%d\n", view.Succeeded)
	fmt.Fprintf(tw, "watermark:\t%d\n", view.Watermark)

	return tw.Flush()
}

func renderPass(w io.Writer, format string, result changesync.PassResult) error {
	view := passView{
		Selected:  result.Selected,
		Groups:    result.Groups,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Retried:   result.Retried,
		Watermark: result.Watermark,
		Seconds:   result.Duration.Seconds(),
	}
	if format == FormatJSON {
		return writeJSON(w, view)
	}

	_, err := fmt.Fprintf(w, "selected %d changes in %d groups: %d synced, %d failed, %d retrying\n",
		view.Selected, view.Groups, view.Succeeded, view.Failed, view.Retried)

	return err
}

func renderMaintenance(w io.Writer, format string, result changesync.MaintenanceResult) error {
	view := maintenanceView{Deleted: result.Deleted, OldFailed: result.OldFailed, Vacuumed: result.Vacuumed}
	if format == FormatJSON {
		return writeJSON(w, view)
	}

	_, err := fmt.Fprintf(w, "deleted %d synced changes, %d old failed changes, vacuumed: %t\n",
		view.Deleted, view.OldFailed, view.Vacuumed)

	return err
}

func renderCount(w io.Writer, format, key, text string, n int64) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]int64{key: n})
	}

	_, err := fmt.Fprintf(w, text+"\n", n)

	return err
}
