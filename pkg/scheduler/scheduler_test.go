package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskhopper/hopper/pkg/taskclient"
)

func taskAt(id string, priority int, age time.Duration, blockedBy string, blocked bool) taskclient.Task {
	return taskclient.Task{
		TaskID:             id,
		Priority:           priority,
		CreatedAt:          time.Now().Add(-age),
		BlockedByTaskID:    blockedBy,
		IsCurrentlyBlocked: blocked,
	}
}

func TestOrderTasksBlockedFilteredWhenEnabled(t *testing.T) {
	batch := []taskclient.Task{
		taskAt("t1", 1, time.Hour, "", false),
		taskAt("t2", 10, time.Hour, "", true),
		taskAt("t3", 5, time.Hour, "", false),
	}
	ordered := OrderTasks(batch, false)
	ids := make([]string, len(ordered))
	for i, t := range ordered {
		ids[i] = t.TaskID
	}
	assert.Equal(t, []string{"t3", "t1"}, ids)
}

func TestOrderTasksBlockedIncludedWhenDisabled(t *testing.T) {
	batch := []taskclient.Task{
		taskAt("t1", 1, time.Hour, "", false),
		taskAt("t2", 10, time.Hour, "", true),
		taskAt("t3", 5, time.Hour, "", false),
	}
	ordered := OrderTasks(batch, true)
	ids := make([]string, len(ordered))
	for i, t := range ordered {
		ids[i] = t.TaskID
	}
	assert.Equal(t, []string{"t2", "t3", "t1"}, ids)
}

func TestOrderTasksBlockerCountWins(t *testing.T) {
	batch := []taskclient.Task{
		taskAt("a", 0, time.Hour, "", false),
		taskAt("b", 0, time.Hour, "a", false),
		taskAt("c", 0, time.Hour, "a", false),
	}
	ordered := OrderTasks(batch, false)
	assert.Equal(t, "a", ordered[0].TaskID) // blocks 2 others
}

func TestOrderTasksBlockerOutsideBatchIgnored(t *testing.T) {
	batch := []taskclient.Task{
		taskAt("a", 0, time.Hour, "", false),
		taskAt("b", 0, time.Hour, "not-in-batch", false),
	}
	ordered := OrderTasks(batch, false)
	assert.Len(t, ordered, 2)
}

func TestOrderTasksAgeTiebreak(t *testing.T) {
	batch := []taskclient.Task{
		taskAt("newer", 0, time.Minute, "", false),
		taskAt("older", 0, time.Hour, "", false),
	}
	ordered := OrderTasks(batch, false)
	assert.Equal(t, "older", ordered[0].TaskID)
}

func TestSelectAgentPrefersMostSlots(t *testing.T) {
	slots := []*AgentSlots{
		{Name: "damien", Remaining: 1},
		{Name: "vaela", Remaining: 2},
	}
	agent, ok := SelectAgent(slots)
	assert.True(t, ok)
	assert.Equal(t, "vaela", agent.Name)
}

func TestSelectAgentTiebreakByName(t *testing.T) {
	slots := []*AgentSlots{
		{Name: "zeta", Remaining: 1},
		{Name: "alpha", Remaining: 1},
	}
	agent, ok := SelectAgent(slots)
	assert.True(t, ok)
	assert.Equal(t, "alpha", agent.Name)
}

func TestSelectAgentNoneAvailable(t *testing.T) {
	slots := []*AgentSlots{{Name: "vaela", Remaining: 0}}
	_, ok := SelectAgent(slots)
	assert.False(t, ok)
}

func TestBuildAgentSlotsClampsNegative(t *testing.T) {
	slots := BuildAgentSlots([]string{"vaela"}, map[string]int{"vaela": 1}, map[string]int{"vaela": 5})
	assert.Equal(t, 0, slots[0].Remaining)
}

func TestTotalSlots(t *testing.T) {
	slots := []*AgentSlots{{Remaining: 2}, {Remaining: 3}}
	assert.Equal(t, 5, TotalSlots(slots))
}
