package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadMatchesTriggerFunctionShape(t *testing.T) {
	payload := `{"xmin": 42, "new": {"isbn": "123"}, "old": null, "indices": ["isbn"], "tg_op": "INSERT", "table": "book", "schema": "public"}`

	ev, err := decodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ev.Xmin)
	assert.Equal(t, "public", ev.Schema)
	assert.Equal(t, "book", ev.Table)
	assert.Equal(t, "INSERT", ev.Op)
	assert.Equal(t, "123", ev.New["isbn"])
	assert.Nil(t, ev.Old)
}

func TestDecodePayloadRejectsMalformedJSON(t *testing.T) {
	_, err := decodePayload("not json")
	assert.Error(t, err)
}
