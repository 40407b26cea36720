package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

	l.Debug("hidden")
	l.With("request_id", "abc").Info("stored", "chunks", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "stored", entry["msg"])
	assert.Equal(t, "abc", entry["request_id"])
	assert.EqualValues(t, 3, entry["chunks"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, GetDefault(), FromContext(context.Background()))

	var buf bytes.Buffer
	l := NewLogger(&Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), l)
	assert.Equal(t, l, FromContext(ctx))
}
