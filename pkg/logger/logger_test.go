package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("orders-service", "debug", &buf)

	log.WithField("order_id", "ORDER-1").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "orders-service", entry["service"])
	assert.Equal(t, "ORDER-1", entry["order_id"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := NewWithOutput("svc", "loud", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, log.Logger.GetLevel())
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("svc", "warn", &buf)

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
