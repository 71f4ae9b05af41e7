// ABOUTME: Tests for logger construction
// ABOUTME: Verifies level parsing, JSON output and file destinations

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug"}, &buf)

	log.Info().Str("feed", "https://example.com/feed").Msg("polled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "polled", entry["message"])
	assert.Equal(t, "https://example.com/feed", entry["feed"])
	assert.Contains(t, entry, "time")
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"WARN", false, false},
		{"", false, true},
		{"nonsense", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tt.level}, &buf)

			log.Debug().Msg("debug")
			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte(`"debug"`)))

			buf.Reset()
			log.Info().Msg("info")
			assert.Equal(t, tt.infoSeen, buf.Len() > 0)
		})
	}
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Pretty: true}, &buf)
	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "pretty output should not be JSON")
}

func TestOpenOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "syndicate.log")
	w := openOutput(path)

	f, ok := w.(*os.File)
	require.True(t, ok, "expected file writer")
	defer f.Close()

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestGetBeforeInitDiscards(t *testing.T) {
	log := Get()
	// Nop logger must not panic
	log.Info().Msg("ignored")
}
