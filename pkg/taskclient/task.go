// Package taskclient adapts the remote task-queue service's RPC surface
// into the handful of typed calls the reconciler needs: list idle work,
// list unassigned work in a queue, assign, claim, requeue, and complete.
package taskclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Task is the scheduler's view of a task owned by the external task
// service. The scheduler only observes and mutates it through the Service
// interface below; it never has authority over task state itself.
type Task struct {
	TaskID             string
	AssignedTo         string
	Status             string
	Recipe             string
	Priority           int
	BlockedByTaskID    string // normalized to string; empty means unset
	IsCurrentlyBlocked bool
	CreatedAt          time.Time
}

// Service is the typed surface the reconciler consumes. Implementations
// must not raise for ordinary operational failures — they log a warning and
// return a zero-value/empty result so one bad queue cannot starve others;
// see isTransportError and callForTasks in the MCP-backed implementation.
type Service interface {
	ListIdle(ctx context.Context, agent string, limit int) ([]Task, error)
	GetUnassignedInQueue(ctx context.Context, queue string, limit int) ([]Task, error)
	Assign(ctx context.Context, taskID, agent string) (bool, error)
	Claim(ctx context.Context, taskID, agent string) error
	Requeue(ctx context.Context, taskID, reason string) error
	Complete(ctx context.Context, taskID string, success bool) error
	Close() error
}

// wireTask mirrors the JSON shape returned by the task service's tools. All
// fields are optional except task_id; task_id may itself arrive as either a
// JSON string or a JSON number (the original "tinytask" service used
// integer ids before a migration to string ids, and old rows linger).
type wireTask struct {
	TaskID             json.RawMessage `json:"task_id"`
	AssignedTo         *string         `json:"assigned_to"`
	Status             *string         `json:"status"`
	Recipe             *string         `json:"recipe"`
	Priority           *int            `json:"priority"`
	BlockedByTaskID    json.RawMessage `json:"blocked_by_task_id"`
	IsCurrentlyBlocked *bool           `json:"is_currently_blocked"`
	CreatedAt          *time.Time      `json:"created_at"`
}

func (w wireTask) toTask() (Task, error) {
	id, err := normalizeID(w.TaskID)
	if err != nil {
		return Task{}, fmt.Errorf("decode task_id: %w", err)
	}
	t := Task{TaskID: id}
	if w.AssignedTo != nil {
		t.AssignedTo = *w.AssignedTo
	}
	if w.Status != nil {
		t.Status = *w.Status
	}
	if w.Recipe != nil {
		t.Recipe = *w.Recipe
	}
	if w.Priority != nil {
		t.Priority = *w.Priority
	}
	if w.IsCurrentlyBlocked != nil {
		t.IsCurrentlyBlocked = *w.IsCurrentlyBlocked
	}
	if w.CreatedAt != nil {
		t.CreatedAt = *w.CreatedAt
	}
	if len(w.BlockedByTaskID) > 0 && string(w.BlockedByTaskID) != "null" {
		blockerID, err := normalizeID(w.BlockedByTaskID)
		if err != nil {
			return Task{}, fmt.Errorf("decode blocked_by_task_id: %w", err)
		}
		t.BlockedByTaskID = blockerID
	}
	return t, nil
}

// normalizeID accepts either a JSON string or a JSON number and returns its
// canonical string form, so "42" and 42 never diverge when compared.
func normalizeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("id must be a string or number, got %s", string(raw))
}

// decodeTasksResponse accepts either a bare JSON array of tasks or a
// {"tasks": [...]} wrapper object, per the task-service RPC surface.
func decodeTasksResponse(data []byte) ([]Task, error) {
	var wrapped struct {
		Tasks []wireTask `json:"tasks"`
	}
	var raw []wireTask

	trimmed := trimLeadingSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode task array: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode task wrapper: %w", err)
		}
		raw = wrapped.Tasks
	}

	tasks := make([]Task, 0, len(raw))
	for _, w := range raw {
		t, err := w.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}
