// Package workload computes a read-only snapshot of scheduler backlog and
// capacity: per-agent slot usage, per-queue unassigned counts and priority
// distribution, and overall blocked/oldest-waiting figures. It never
// mutates lease or task-service state and the reconciler does not depend
// on it; it exists purely for the `workload` CLI report.
package workload

import (
	"sort"
	"time"

	"github.com/taskhopper/hopper/pkg/taskclient"
)

// AgentStatus is one agent's slot usage.
type AgentStatus struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Active    int    `json:"active"`
	Limit     int    `json:"limit"`
	Available int    `json:"available"`
}

// QueueStatus is one queue's backlog summary.
type QueueStatus struct {
	Queue             string        `json:"queue"`
	Unassigned        int           `json:"unassigned"`
	PriorityHistogram map[int]int   `json:"priority_histogram"`
	OldestAge         time.Duration `json:"oldest_age_seconds"`
}

// Report is the full workload snapshot.
type Report struct {
	GeneratedAt         time.Time     `json:"generated_at"`
	Agents              []AgentStatus `json:"agents"`
	Queues              []QueueStatus `json:"queues"`
	TotalBlocked        int           `json:"total_blocked"`
	OldestUnassignedAge time.Duration `json:"oldest_unassigned_age_seconds"`
}

// AgentType maps an agent name to the queue (agent type) it belongs to.
type AgentType func(agent string) (string, bool)

// Snapshot computes a Report from the current active-lease counts per
// agent, the configured agent limits, the per-queue unassigned tasks
// fetched by the caller, and the queue each registered agent belongs to.
// now is passed in rather than computed internally so results are
// deterministic and testable.
func Snapshot(agentNames []string, limits, active map[string]int, typeOf AgentType, queueTasks map[string][]taskclient.Task, now time.Time) Report {
	r := Report{GeneratedAt: now}

	for _, name := range agentNames {
		limit := limits[name]
		used := active[name]
		avail := limit - used
		if avail < 0 {
			avail = 0
		}
		queue, _ := typeOf(name)
		r.Agents = append(r.Agents, AgentStatus{
			Name: name, Type: queue, Active: used, Limit: limit, Available: avail,
		})
	}
	sort.Slice(r.Agents, func(i, j int) bool { return r.Agents[i].Name < r.Agents[j].Name })

	var oldest time.Time
	queues := make([]string, 0, len(queueTasks))
	for q := range queueTasks {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	for _, q := range queues {
		tasks := queueTasks[q]
		qs := QueueStatus{Queue: q, Unassigned: len(tasks), PriorityHistogram: map[int]int{}}
		var queueOldest time.Time
		for _, t := range tasks {
			qs.PriorityHistogram[t.Priority]++
			if t.IsCurrentlyBlocked {
				r.TotalBlocked++
			}
			if queueOldest.IsZero() || (!t.CreatedAt.IsZero() && t.CreatedAt.Before(queueOldest)) {
				queueOldest = t.CreatedAt
			}
		}
		if !queueOldest.IsZero() {
			qs.OldestAge = now.Sub(queueOldest)
			if oldest.IsZero() || queueOldest.Before(oldest) {
				oldest = queueOldest
			}
		}
		r.Queues = append(r.Queues, qs)
	}

	if !oldest.IsZero() {
		r.OldestUnassignedAge = now.Sub(oldest)
	}
	return r
}
