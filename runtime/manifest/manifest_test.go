package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
version: v1
metadata:
  name: test-pipeline
nodes:
  - id: calc
    node_type: calculator
    params:
      operation: add
connections: []
`

func TestParseYAMLValid(t *testing.T) {
	m, err := ParseYAML([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version)
	assert.Equal(t, "test-pipeline", m.Metadata.Name)
	require.Len(t, m.Nodes, 1)
	assert.Equal(t, "calculator", m.Nodes[0].NodeType)
}

func TestParseYAMLRejectsUnknownField(t *testing.T) {
	const bad = `
version: v1
metadata:
  name: test
totally_unknown_field: true
nodes: []
connections: []
`
	_, err := ParseYAML([]byte(bad))
	require.Error(t, err)
}

func TestParseJSONRejectsUnknownField(t *testing.T) {
	const bad = `{"version":"v1","metadata":{"name":"t"},"nodes":[],"connections":[],"bogus":1}`
	_, err := ParseJSON([]byte(bad))
	require.Error(t, err)
}

func TestParseJSONValid(t *testing.T) {
	const good = `{"version":"v1","metadata":{"name":"t"},"nodes":[],"connections":[]}`
	m, err := ParseJSON([]byte(good))
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version)
}

func TestCheckVersionRejectsBadFormat(t *testing.T) {
	m := &Manifest{Version: "1"}
	assert.Error(t, m.CheckVersion())
}

func TestCheckVersionRejectsUnsupportedVersion(t *testing.T) {
	m := &Manifest{Version: "v99"}
	assert.Error(t, m.CheckVersion())
}

func TestCheckVersionAcceptsSupported(t *testing.T) {
	m := &Manifest{Version: "v1"}
	assert.NoError(t, m.CheckVersion())
}

func TestHashIsDeterministic(t *testing.T) {
	m1 := &Manifest{Version: "v1", Metadata: Metadata{Name: "a"}}
	m2 := &Manifest{Version: "v1", Metadata: Metadata{Name: "a"}}
	h1, err := m1.Hash()
	require.NoError(t, err)
	h2, err := m2.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashChangesWithParams(t *testing.T) {
	m1 := &Manifest{Version: "v1", Nodes: []NodeSpec{{ID: "a", NodeType: "calculator", Params: map[string]any{"value": 1}}}}
	m2 := &Manifest{Version: "v1", Nodes: []NodeSpec{{ID: "a", NodeType: "calculator", Params: map[string]any{"value": 2}}}}
	h1, err := m1.Hash()
	require.NoError(t, err)
	h2, err := m2.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
