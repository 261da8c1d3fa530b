package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "task_123", false},
		{"hyphenated", "my-agent", false},
		{"empty", "", true},
		{"path traversal", "../../etc/passwd", true},
		{"too long", string(make([]byte, 65)), true},
		{"spaces", "task 123", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Identifier(tt.value, "task_id")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecipePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte("a: 1"), 0o644))

	t.Run("valid", func(t *testing.T) {
		p, err := RecipePath("dev.yaml", dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "dev.yaml"), p)
	})

	t.Run("absolute rejected", func(t *testing.T) {
		_, err := RecipePath("/etc/passwd.yaml", dir)
		assert.Error(t, err)
	})

	t.Run("parent traversal rejected", func(t *testing.T) {
		_, err := RecipePath("../../../etc/passwd.yaml", dir)
		assert.Error(t, err)
	})

	t.Run("wrong extension rejected", func(t *testing.T) {
		_, err := RecipePath("dev.yaml.txt", dir)
		assert.Error(t, err)
	})

	t.Run("symlink escape rejected", func(t *testing.T) {
		outside := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.yaml"), []byte("a: 1"), 0o644))
		require.NoError(t, os.Symlink(filepath.Join(outside, "secret.yaml"), filepath.Join(dir, "escape.yaml")))
		_, err := RecipePath("escape.yaml", dir)
		assert.Error(t, err)
	})
}

func TestLeasePath(t *testing.T) {
	dir := t.TempDir()
	p, err := LeasePath("42", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "task_42.json"), p)

	_, err = LeasePath("../42", dir)
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	_, err := Endpoint("http://example.com:8080/mcp", false)
	assert.NoError(t, err)

	_, err = Endpoint("ftp://example.com", false)
	assert.Error(t, err)

	_, err = Endpoint("http://localhost:9000", true)
	assert.Error(t, err)

	_, err = Endpoint("http://localhost:9000", false)
	assert.NoError(t, err)
}

func TestHostname(t *testing.T) {
	_, err := Hostname("worker-01.internal")
	assert.NoError(t, err)

	_, err = Hostname("bad host!")
	assert.Error(t, err)

	_, err = Hostname("")
	assert.Error(t, err)
}

func TestJSONFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	assert.NoError(t, JSONFileSize(path, 10))

	err := JSONFileSize(filepath.Join(dir, "missing.json"), 10)
	assert.Error(t, err)
}
