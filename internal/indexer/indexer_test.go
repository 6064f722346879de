package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBulkBodyUpsertIncludesSourceLine(t *testing.T) {
	body := buildBulkBody([]Action{
		{Op: OpUpsert, Index: "books", ID: "978-1", Document: map[string]interface{}{"title": "Go"}},
	})
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"_id":"978-1"`)
	assert.Contains(t, lines[0], `"index"`)
	assert.Contains(t, lines[1], `"title":"Go"`)
}

func TestBuildBulkBodyDeleteHasNoSourceLine(t *testing.T) {
	body := buildBulkBody([]Action{
		{Op: OpDelete, Index: "books", ID: "978-1"},
	})
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"delete"`)
}

func TestClassifySeparatesRetryableFromFatal(t *testing.T) {
	body := strings.NewReader(`{
		"errors": true,
		"items": [
			{"index": {"_id": "1", "status": 201}},
			{"index": {"_id": "2", "status": 429, "error": {"type": "es_rejected_execution_exception", "reason": "busy"}}},
			{"index": {"_id": "3", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad doc"}}}
		]
	}`)

	result, err := classify(body)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.retryableFailures)
	require.Len(t, result.FatalFailures, 1)
	assert.Equal(t, "3", result.FatalFailures[0].ID)
	assert.Equal(t, "bad doc", result.FatalFailures[0].Reason)
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, isRetryableStatus(429))
	assert.True(t, isRetryableStatus(503))
	assert.False(t, isRetryableStatus(400))
	assert.False(t, isRetryableStatus(201))
}
