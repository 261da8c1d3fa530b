package taskclient

import "context"

// FakeService is a minimal in-memory Service, used by the reconciler's
// tests so they exercise the real interface without a live task service or
// the MCP transport.
type FakeService struct {
	Idle       map[string][]Task // agent -> idle tasks
	Unassigned map[string][]Task // queue -> unassigned tasks

	AssignErr   error
	AssignFails map[string]bool // task ids that should fail to assign

	Assigned  []string
	Claimed   []string
	Requeued  []string
	Completed []string
}

// NewFakeService returns an empty FakeService ready for per-test population.
func NewFakeService() *FakeService {
	return &FakeService{
		Idle:        map[string][]Task{},
		Unassigned:  map[string][]Task{},
		AssignFails: map[string]bool{},
	}
}

func (f *FakeService) ListIdle(_ context.Context, agent string, limit int) ([]Task, error) {
	tasks := f.Idle[agent]
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (f *FakeService) GetUnassignedInQueue(_ context.Context, queue string, limit int) ([]Task, error) {
	tasks := f.Unassigned[queue]
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (f *FakeService) Assign(_ context.Context, taskID, agent string) (bool, error) {
	if f.AssignErr != nil {
		return false, f.AssignErr
	}
	if f.AssignFails[taskID] {
		return false, nil
	}
	f.Assigned = append(f.Assigned, taskID+":"+agent)
	return true, nil
}

func (f *FakeService) Claim(_ context.Context, taskID, agent string) error {
	f.Claimed = append(f.Claimed, taskID+":"+agent)
	return nil
}

func (f *FakeService) Requeue(_ context.Context, taskID, reason string) error {
	f.Requeued = append(f.Requeued, taskID+":"+reason)
	return nil
}

func (f *FakeService) Complete(_ context.Context, taskID string, success bool) error {
	f.Completed = append(f.Completed, taskID)
	return nil
}

func (f *FakeService) Close() error { return nil }
