package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type encodeFixture struct {
	Op    string `json:"op" yaml:"op"`
	Count int    `json:"count" yaml:"count"`
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, encodeFixture{Op: "WRITE", Count: 3}))

	out := buf.String()
	assert.Contains(t, out, `"op": "WRITE"`)
	assert.Contains(t, out, `"count": 3`)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	data := []encodeFixture{
		{Op: "OPEN", Count: 1},
		{Op: "CLOSE", Count: 1},
	}
	require.NoError(t, PrintYAML(&buf, data))

	out := buf.String()
	assert.Contains(t, out, "- op: OPEN")
	assert.Contains(t, out, "- op: CLOSE")
	assert.Contains(t, out, "count: 1")
}
