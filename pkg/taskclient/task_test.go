package taskclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTasksResponseBareArray(t *testing.T) {
	data := []byte(`[{"task_id":"1","assigned_to":"vaela","status":"idle","priority":3}]`)
	tasks, err := decodeTasksResponse(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "1", tasks[0].TaskID)
	assert.Equal(t, "vaela", tasks[0].AssignedTo)
	assert.Equal(t, 3, tasks[0].Priority)
}

func TestDecodeTasksResponseWrapperObject(t *testing.T) {
	data := []byte(`{"tasks":[{"task_id":42,"status":"idle"}]}`)
	tasks, err := decodeTasksResponse(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "42", tasks[0].TaskID)
}

func TestDecodeTasksResponseLeadingWhitespace(t *testing.T) {
	data := []byte("  \n\t[{\"task_id\":\"1\"}]")
	tasks, err := decodeTasksResponse(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestDecodeTasksResponseIntegerTaskID(t *testing.T) {
	data := []byte(`[{"task_id":7}]`)
	tasks, err := decodeTasksResponse(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "7", tasks[0].TaskID)
}

func TestDecodeTasksResponseBlockedByTaskID(t *testing.T) {
	data := []byte(`[{"task_id":"1","blocked_by_task_id":"2","is_currently_blocked":true}]`)
	tasks, err := decodeTasksResponse(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "2", tasks[0].BlockedByTaskID)
	assert.True(t, tasks[0].IsCurrentlyBlocked)
}

func TestDecodeTasksResponseNullBlockedBy(t *testing.T) {
	data := []byte(`[{"task_id":"1","blocked_by_task_id":null}]`)
	tasks, err := decodeTasksResponse(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].BlockedByTaskID)
}

func TestDecodeTasksResponseEmptyArray(t *testing.T) {
	tasks, err := decodeTasksResponse([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDecodeTasksResponseMalformed(t *testing.T) {
	_, err := decodeTasksResponse([]byte(`not json`))
	assert.Error(t, err)
}

func TestNormalizeIDRejectsObject(t *testing.T) {
	_, err := normalizeID([]byte(`{"a":1}`))
	assert.Error(t, err)
}
