package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithWriters(t *testing.T) {
	var text, js bytes.Buffer
	logger := WithWriters(&text, &js, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("networks assembled", "networks", 3)

	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, text.String(), "networks assembled")
	assert.Contains(t, text.String(), "networks=3")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &rec))
	assert.Equal(t, "networks assembled", rec["msg"])
	assert.EqualValues(t, 3, rec["networks"])
}

func TestSetupLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ionnet.log")
	logger, closeFn := Setup(path, slog.LevelDebug)
	logger.Debug("row skipped", "row", 9)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"row skipped"`)
	assert.Contains(t, string(data), `"row":9`)
}

func TestSetupWithoutFile(t *testing.T) {
	logger, closeFn := Setup("", slog.LevelInfo)
	assert.NotNil(t, logger)
	assert.NoError(t, closeFn())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
