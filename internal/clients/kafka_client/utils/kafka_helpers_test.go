package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	RequestID string   `json:"request_id"`
	Comments  []string `json:"comments"`
}

func TestDeserializeFromJSON(t *testing.T) {
	got, err := DeserializeFromJSON[payload]([]byte(`{"request_id":"r-1","comments":["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, payload{RequestID: "r-1", Comments: []string{"a", "b"}}, got)

	_, err = DeserializeFromJSON[payload]([]byte(`{not json`))
	assert.Error(t, err)
}

func TestSerializeToJSON(t *testing.T) {
	data, err := SerializeToJSON(payload{RequestID: "r-2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_id":"r-2","comments":null}`, string(data))

	_, err = SerializeToJSON(make(chan int))
	assert.Error(t, err)
}
