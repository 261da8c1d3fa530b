// Package registry loads the static agent roster — the mapping of agent
// name to the queue (agent type) it services — from a JSON control file.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/taskhopper/hopper/pkg/log"
)

// ErrNotArray is returned when the control file's JSON root is not an array.
var ErrNotArray = errors.New("agent control file must contain a JSON array")

// AgentConfig is one entry in the agent control file.
type AgentConfig struct {
	Name string
	Type string
}

type rawAgent struct {
	AgentName string `json:"agentName"`
	AgentType string `json:"agentType"`
}

// Registry indexes the agent roster by type (queue) and by name. It is safe
// for concurrent reads; Reload atomically swaps the indexes.
type Registry struct {
	path string

	mu        sync.RWMutex
	agents    []AgentConfig
	byType    map[string][]string
	byName    map[string]string
}

// Load reads and indexes the control file at path.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the control file and atomically replaces the in-memory
// indexes. On error, the previously loaded state is retained.
func (r *Registry) Reload() error {
	return r.reload()
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("agent control file not found: %s", r.path)
		}
		return fmt.Errorf("read agent control file: %w", err)
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("invalid JSON in agent control file: %w", err)
	}
	if _, isArray := generic.([]any); !isArray {
		return fmt.Errorf("%w: got %T", ErrNotArray, generic)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON in agent control file: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("agent control file must contain at least one agent (empty registry is a validation error)")
	}

	agents := make([]AgentConfig, 0, len(raw))
	index := make(map[string]int) // agent name -> position in agents

	for _, item := range raw {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("agent control file must contain a JSON array of objects: %w", err)
		}

		var entry rawAgent
		if err := json.Unmarshal(item, &entry); err != nil {
			return fmt.Errorf("invalid agent entry: %w", err)
		}
		if entry.AgentName == "" {
			return fmt.Errorf("missing required field 'agentName' in agent configuration")
		}
		if entry.AgentType == "" {
			return fmt.Errorf("missing required field 'agentType' in agent configuration")
		}

		if unexpected := unexpectedFields(obj); len(unexpected) > 0 {
			log.WithComponent("registry").Warn().
				Str("agent", entry.AgentName).
				Strs("fields", unexpected).
				Msg("agent entry has unexpected fields")
		}

		if pos, dup := index[entry.AgentName]; dup {
			log.WithComponent("registry").Warn().
				Str("agent", entry.AgentName).
				Msg("duplicate agent name in control file, using last occurrence")
			agents[pos] = AgentConfig{Name: entry.AgentName, Type: entry.AgentType}
			continue
		}

		index[entry.AgentName] = len(agents)
		agents = append(agents, AgentConfig{Name: entry.AgentName, Type: entry.AgentType})
	}

	byType := make(map[string][]string)
	byName := make(map[string]string)
	for _, a := range agents {
		byType[a.Type] = append(byType[a.Type], a.Name)
		byName[a.Name] = a.Type
	}

	r.mu.Lock()
	r.agents = agents
	r.byType = byType
	r.byName = byName
	r.mu.Unlock()
	return nil
}

func unexpectedFields(obj map[string]json.RawMessage) []string {
	var unexpected []string
	for k := range obj {
		if k != "agentName" && k != "agentType" {
			unexpected = append(unexpected, k)
		}
	}
	return unexpected
}

// AgentsByType returns the agent names registered for a queue, in control
// file order. Returns an empty slice for an unknown queue.
func (r *Registry) AgentsByType(agentType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byType[agentType]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// TypeOf returns the queue an agent belongs to.
func (r *Registry) TypeOf(agentName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[agentName]
	return t, ok
}

// AllTypes returns every queue name, in first-seen order.
func (r *Registry) AllTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var types []string
	for _, a := range r.agents {
		if !seen[a.Type] {
			seen[a.Type] = true
			types = append(types, a.Type)
		}
	}
	return types
}

// AllNames returns every agent name in control-file order.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.agents))
	for i, a := range r.agents {
		names[i] = a.Name
	}
	return names
}
