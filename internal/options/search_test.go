package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOptionsCompleteRequiresAddresses(t *testing.T) {
	o := &SearchOptions{}
	_, err := o.Complete()
	assert.Error(t, err)
}

func TestSearchOptionsCompleteDefaultsBackoff(t *testing.T) {
	o := &SearchOptions{Addresses: []string{"http://localhost:9200"}}
	client, err := o.Complete()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotZero(t, o.InitialBackoff)
	assert.NotZero(t, o.MaxBackoff)
}
