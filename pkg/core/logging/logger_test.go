package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONWithFieldMap(t *testing.T) {
	var buf bytes.Buffer
	Init("debug", &buf)
	t.Cleanup(func() { Init("info", nil) })

	New("ingest").WithField("pages", 12).Debug("pdf loaded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pdf loaded", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "ingest", line["component"])
	assert.Contains(t, line, "timestamp")
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	Init("chatty", &bytes.Buffer{})
	t.Cleanup(func() { Init("info", nil) })
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	e := New("x")
	assert.Same(t, e, OrDiscard(e))
}
