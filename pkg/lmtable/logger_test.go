package lmtable

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CVDpl/go-lmtable/internal/common"
)

func TestWriterLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := WithContext(NewWriterLogger(&buf, common.LogLevelInfo), map[string]interface{}{"component": "test"})
	l.Debug("hidden")
	l.Info("table finalized", "order", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "table finalized", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, float64(3), entry["order"])
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, common.LogLevelWarn, lvl)
	_, err = ParseLogLevel("loud")
	require.Error(t, err)
}

func TestTableLogsThroughOptions(t *testing.T) {
	var buf bytes.Buffer
	opts := testOptions()
	opts.Logger = NewWriterLogger(&buf, common.LogLevelDebug)
	tb := buildTable(t, genCorpus(51, 5, 2), false, opts, nil)
	tb.Find([]uint32{1, 2})
	tb.LogStats()

	assert.Contains(t, buf.String(), `"message":"table finalized"`)
	assert.Contains(t, buf.String(), `"message":"table stats"`)
}
