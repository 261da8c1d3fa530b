// Package scheduler implements queue-to-agent matching: ordering candidate
// tasks within a batch and picking which agent a task goes to.
package scheduler

import (
	"sort"

	"github.com/taskhopper/hopper/pkg/taskclient"
)

// AgentSlots tracks remaining capacity for one agent during a single pass.
type AgentSlots struct {
	Name      string
	Remaining int
}

// OrderTasks applies the ordering from the task-matching step: filter
// blocked tasks (unless disableBlocking), then sort by blocker count
// descending, priority descending, age ascending.
func OrderTasks(tasks []taskclient.Task, disableBlocking bool) []taskclient.Task {
	surviving := make([]taskclient.Task, 0, len(tasks))
	for _, t := range tasks {
		if !disableBlocking && t.IsCurrentlyBlocked {
			continue
		}
		surviving = append(surviving, t)
	}

	blockerCount := make(map[string]int, len(surviving))
	ids := make(map[string]bool, len(surviving))
	for _, t := range surviving {
		ids[t.TaskID] = true
	}
	for _, t := range surviving {
		if t.BlockedByTaskID == "" {
			continue
		}
		if !ids[t.BlockedByTaskID] {
			continue // blocker outside the batch doesn't count
		}
		blockerCount[t.BlockedByTaskID]++
	}

	sort.SliceStable(surviving, func(i, j int) bool {
		a, b := surviving[i], surviving[j]
		if bc := blockerCount[a.TaskID] - blockerCount[b.TaskID]; bc != 0 {
			return bc > 0
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return surviving
}

// SelectAgent returns the agent with the most remaining slots, breaking
// ties by name, or ok=false if every agent is full.
func SelectAgent(slots []*AgentSlots) (agent *AgentSlots, ok bool) {
	for _, s := range slots {
		if s.Remaining <= 0 {
			continue
		}
		if agent == nil || s.Remaining > agent.Remaining ||
			(s.Remaining == agent.Remaining && s.Name < agent.Name) {
			agent = s
		}
	}
	return agent, agent != nil
}

// BuildAgentSlots computes available = max(0, limit - active) per agent,
// in the given agent-name order.
func BuildAgentSlots(agentNames []string, limits map[string]int, active map[string]int) []*AgentSlots {
	slots := make([]*AgentSlots, 0, len(agentNames))
	for _, name := range agentNames {
		avail := limits[name] - active[name]
		if avail < 0 {
			avail = 0
		}
		slots = append(slots, &AgentSlots{Name: name, Remaining: avail})
	}
	return slots
}

// TotalSlots sums remaining capacity across agents.
func TotalSlots(slots []*AgentSlots) int {
	total := 0
	for _, s := range slots {
		total += s.Remaining
	}
	return total
}
