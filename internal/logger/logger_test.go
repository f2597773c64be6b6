package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZerologAdapterWritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, InfoLevel)

	log.Info("Bootstrap", "window ready", map[string]interface{}{"label": "main"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Bootstrap", entry["component"])
	assert.Equal(t, "window ready", entry["message"])
	assert.Equal(t, "main", entry["label"])
	assert.Equal(t, "info", entry["level"])
}

func TestZerologAdapterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, WarnLevel)

	log.Debug("x", "hidden", nil)
	log.Info("x", "hidden", nil)
	assert.Zero(t, buf.Len())

	log.Error("x", errors.New("boom"), nil)
	assert.Contains(t, buf.String(), "boom")
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOp{}, OrNoOp(nil))

	z := NewZerolog(&bytes.Buffer{}, InfoLevel)
	assert.Same(t, z, OrNoOp(z))
}
