package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/domain/config"
)

func TestNew_TextDropsTime(t *testing.T) {
	t.Setenv("SAFEPAY_LOG_LEVEL", "")
	var buf bytes.Buffer
	log := New(&buf, &config.RuntimeConfig{})

	log.Debug("hidden")
	log.Info("settlement confirmed", "settlement_id", "s1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "time=")
	assert.Contains(t, out, "settlement_id=s1")
}

func TestNew_JSON(t *testing.T) {
	t.Setenv("SAFEPAY_LOG_LEVEL", "")
	var buf bytes.Buffer
	log := New(&buf, &config.RuntimeConfig{Log: config.LogConfig{Level: "warn", Format: "json"}})

	log.Info("skipped")
	log.Warn("proposal not indexed", "safe_tx_hash", "0xbbbb")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "0xbbbb", entry["safe_tx_hash"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelPrecedence(t *testing.T) {
	t.Setenv("SAFEPAY_LOG_LEVEL", "error")
	var buf bytes.Buffer
	log := New(&buf, &config.RuntimeConfig{Debug: true})

	log.Warn("dropped")
	log.Error("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("Debug", 0).String())
	assert.Equal(t, "WARN", parseLevel("warning", 0).String())
	assert.Equal(t, "INFO", parseLevel("bogus", 0).String())
}
