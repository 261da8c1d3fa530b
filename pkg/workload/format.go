package workload

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// WriteText renders r as the operator-facing console report, in the same
// plain fmt.Fprintf style as the CLI's other human-readable output.
func WriteText(w io.Writer, r Report) {
	fmt.Fprintln(w, "Agents:")
	for _, a := range r.Agents {
		fmt.Fprintf(w, "  %-16s type=%-10s active=%-3d limit=%-3d available=%d\n", a.Name, a.Type, a.Active, a.Limit, a.Available)
	}
	if len(r.Agents) == 0 {
		fmt.Fprintln(w, "  (none registered)")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Queues:")
	for _, q := range r.Queues {
		fmt.Fprintf(w, "  %-16s unassigned=%-4d oldest=%s priorities=%s\n", q.Queue, q.Unassigned, q.OldestAge.Round(1e9), formatHistogram(q.PriorityHistogram))
	}
	if len(r.Queues) == 0 {
		fmt.Fprintln(w, "  (no unassigned work)")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total blocked: %d\n", r.TotalBlocked)
	fmt.Fprintf(w, "Oldest unassigned task age: %s\n", r.OldestUnassignedAge.Round(1e9))
}

// WriteJSON renders r as indented JSON, with the age fields in seconds.
func WriteJSON(w io.Writer, r Report) error {
	type queueJSON struct {
		QueueStatus
		OldestAge float64 `json:"oldest_age_seconds"`
	}
	out := struct {
		Report
		Queues              []queueJSON `json:"queues"`
		OldestUnassignedAge float64     `json:"oldest_unassigned_age_seconds"`
	}{Report: r, OldestUnassignedAge: r.OldestUnassignedAge.Seconds()}
	for _, q := range r.Queues {
		out.Queues = append(out.Queues, queueJSON{QueueStatus: q, OldestAge: q.OldestAge.Seconds()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatHistogram(h map[int]int) string {
	priorities := make([]int, 0, len(h))
	for p := range h {
		priorities = append(priorities, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	out := ""
	for i, p := range priorities {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d:%d", p, h[p])
	}
	if out == "" {
		return "-"
	}
	return out
}
