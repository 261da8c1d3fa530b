// Package recipe validates that a recipe file referenced by a task exists
// within the recipes directory and parses as YAML before a wrapper is
// spawned against it.
package recipe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskhopper/hopper/pkg/validate"
)

// Recipe is the minimal shape hopper needs to know a recipe is well-formed;
// the wrapper binary owns the rest of the schema.
type Recipe struct {
	Steps []map[string]any `yaml:"steps"`
}

// Resolve validates name against base (absolute/traversal/extension/symlink
// checks) and returns the resolved path, without requiring the file exist.
func Resolve(name, base string) (string, error) {
	return validate.RecipePath(name, base)
}

// Load resolves name within base, reads the file, and parses it as YAML.
// It returns a descriptive error if the file is missing or malformed so the
// reconciler's direct sweep can log and skip rather than spawn a wrapper
// doomed to fail immediately.
func Load(name, base string) (Recipe, error) {
	path, err := Resolve(name, base)
	if err != nil {
		return Recipe{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Recipe{}, fmt.Errorf("recipe %s not found in %s", name, base)
		}
		return Recipe{}, fmt.Errorf("read recipe %s: %w", name, err)
	}
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Recipe{}, fmt.Errorf("parse recipe %s: %w", name, err)
	}
	return r, nil
}

// Exists reports whether name resolves to a readable file within base,
// without parsing it.
func Exists(name, base string) bool {
	path, err := Resolve(name, base)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
