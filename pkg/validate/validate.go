// Package validate implements the trust-boundary checks every externally
// supplied identifier, path, or URL must pass before it reaches a shell
// command, a file path, or a lease filename. Every failure is a plain error,
// never a panic: callers abort the single action being attempted and move on.
package validate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9.-]{1,253}$`)

const maxIdentifierLength = 64

// Identifier validates a generic identifier: non-empty, at most 64 bytes,
// matching [A-Za-z0-9_-]+. name is used only to make the error message
// specific to the caller.
func Identifier(value, name string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("empty %s not allowed", name)
	}
	if len(value) > maxIdentifierLength {
		return "", fmt.Errorf("%s too long: %d > %d", name, len(value), maxIdentifierLength)
	}
	if !identifierPattern.MatchString(value) {
		return "", fmt.Errorf("invalid %s %q: only alphanumeric, hyphens, and underscores allowed", name, value)
	}
	return value, nil
}

// TaskID validates a task identifier for use in file paths and argv.
func TaskID(taskID string) (string, error) {
	return Identifier(taskID, "task_id")
}

// AgentName validates an agent name for use in file paths and argv.
func AgentName(agent string) (string, error) {
	return Identifier(agent, "agent")
}

// RecipePath validates a recipe filename against a base recipes directory:
// it rejects absolute paths and ".." components, requires a .yaml/.yml
// suffix, and requires the resolved real path to stay inside the resolved
// real base directory (this also catches a symlink escape).
func RecipePath(recipe, base string) (string, error) {
	if recipe == "" {
		return "", fmt.Errorf("empty recipe not allowed")
	}
	if filepath.IsAbs(recipe) {
		return "", fmt.Errorf("absolute recipe paths not allowed: %s", recipe)
	}
	for _, part := range strings.Split(filepath.ToSlash(recipe), "/") {
		if part == ".." {
			return "", fmt.Errorf("parent directory references not allowed in recipe: %s", recipe)
		}
	}
	if !strings.HasSuffix(recipe, ".yaml") && !strings.HasSuffix(recipe, ".yml") {
		return "", fmt.Errorf("recipe must have .yaml or .yml extension: %s", recipe)
	}

	baseResolved, err := resolveSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("cannot resolve recipes directory %s: %w", base, err)
	}
	candidate := filepath.Join(baseResolved, recipe)
	candidateResolved, err := resolveSymlinks(candidate)
	if err != nil {
		// Recipe file may not exist yet on disk (caller may be checking
		// a path prior to creation) — fall back to the lexical join.
		candidateResolved = filepath.Clean(candidate)
	}
	if !withinDir(candidateResolved, baseResolved) {
		return "", fmt.Errorf("recipe path outside recipes directory: %s -> %s", recipe, candidateResolved)
	}
	return candidateResolved, nil
}

// LeasePath validates a task id and constructs the path to its lease file
// within base, confirming the resolved path stays inside base.
func LeasePath(taskID, base string) (string, error) {
	validated, err := TaskID(taskID)
	if err != nil {
		return "", err
	}
	baseResolved, err := resolveSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("cannot resolve lease directory %s: %w", base, err)
	}
	candidate := filepath.Join(baseResolved, fmt.Sprintf("task_%s.json", validated))
	if !withinDir(candidate, baseResolved) {
		return "", fmt.Errorf("path traversal detected in task_id: %s", taskID)
	}
	return candidate, nil
}

// Endpoint validates a task-service endpoint URL: scheme must be http or
// https, and loopback hosts may optionally be rejected (SSRF hardening for
// production deployments).
func Endpoint(endpoint string, forbidLoopback bool) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint url %q: %w", endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint scheme %q: only http/https allowed", parsed.Scheme)
	}
	if forbidLoopback {
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "0.0.0.0", "::1":
			return "", fmt.Errorf("loopback endpoints not allowed: %s", endpoint)
		}
	}
	return endpoint, nil
}

// Hostname validates a hostname for use in logging, lease records, and the
// wrapper argv: an RFC 1123 subset, alphanumeric plus dots and hyphens.
func Hostname(hostname string) (string, error) {
	if hostname == "" {
		return "", fmt.Errorf("empty hostname not allowed")
	}
	if !hostnamePattern.MatchString(hostname) {
		return "", fmt.Errorf("invalid hostname %q", hostname)
	}
	return hostname, nil
}

// JSONFileSize rejects JSON files larger than maxMB before they are parsed,
// guarding against resource-exhaustion from an oversized control file.
func JSONFileSize(path string, maxMB int) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	maxBytes := int64(maxMB) * 1024 * 1024
	if info.Size() > maxBytes {
		return fmt.Errorf("json file too large: %s is %.2fMB (max %dMB)", filepath.Base(path), float64(info.Size())/(1024*1024), maxMB)
	}
	return nil
}

// resolveSymlinks resolves symlinks in path, tolerating a path whose final
// component does not yet exist (only the existing prefix is resolved).
func resolveSymlinks(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	// Walk up until we find a prefix that exists, resolve it, then
	// reattach the remaining (not-yet-created) suffix.
	dir, base := filepath.Split(abs)
	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if dir == "" || dir == abs {
		return abs, nil
	}
	resolvedDir, err := resolveSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// withinDir reports whether candidate is equal to or nested under base.
func withinDir(candidate, base string) bool {
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}
