package logger

import (
	"bytes"
	"testing"

	"aicam-ingest/internal/config"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_AttachesServiceAndInstance(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.Config{ServiceName: "aicam-ingest", InstanceID: "i-1", LogLevel: "info"}, &buf)

	l.Info().Str("stream_id", "lobby").Msg("registered")
	l.Debug().Msg("dropped below level")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "aicam-ingest", line["service"])
	assert.Equal(t, "i-1", line["instance"])
	assert.Equal(t, "lobby", line["stream_id"])
	assert.Equal(t, "registered", line["message"])
}
