package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoIsBracketed(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(&stdout, &stderr)

	logger.Info("Reading event 12", "fileReader")

	line := stdout.String()
	assert.True(t, strings.HasPrefix(line, "["))
	assert.True(t, strings.HasSuffix(line, "[fileReader] Reading event 12\n"), line)
	assert.Empty(t, stderr.String())
}

func TestErrorIsJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(&stdout, &stderr)

	logger.Error("error reading event")

	var record map[string]any
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "error reading event", record["msg"])
	assert.Empty(t, stdout.String())
}

func TestHandlerWithAttrsSharesOutput(t *testing.T) {
	var out bytes.Buffer
	handler := NewHandler(&out, nil)

	child := handler.WithAttrs(nil)
	require.IsType(t, &Handler{}, child)
	assert.Same(t, handler.mu, child.(*Handler).mu)
}
