package inscribe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolMetadataIsWellFormed(t *testing.T) {
	tool := New(nil)
	require.Equal(t, "inscribe", tool.Name())
	require.NotEmpty(t, tool.Description())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema(), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "action")
	require.Contains(t, props, "content")
}
