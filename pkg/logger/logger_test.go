package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: level})
	return l, &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_WritesStructuredJSON(t *testing.T) {
	l, buf := captureLogger(LevelInfo)

	l.Info("activity recorded",
		ChildID("child-1"),
		PointsAmount(10),
		Bool("accepted", true),
	)

	entry := decodeEntry(t, buf)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "activity recorded", entry.Message)
	assert.Equal(t, "child-1", entry.Fields["child_id"])
	assert.Equal(t, float64(10), entry.Fields["points"])
	assert.Equal(t, true, entry.Fields["accepted"])
	assert.NotEmpty(t, entry.Timestamp)
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := captureLogger(LevelWarn)

	l.Debug("noise")
	l.Info("noise")
	assert.Zero(t, buf.Len())

	l.Warn("drift detected")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithBindsFields(t *testing.T) {
	l, buf := captureLogger(LevelInfo)
	scoped := l.With(Component("scheduler"), FamilyID("fam-1"))

	scoped.Info("job started")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "scheduler", entry.Fields["component"])
	assert.Equal(t, "fam-1", entry.Fields["family_id"])

	// The parent logger is not polluted by the child's fields.
	buf.Reset()
	l.Info("plain")
	entry = decodeEntry(t, buf)
	assert.NotContains(t, entry.Fields, "component")
}

func TestErrField(t *testing.T) {
	l, buf := captureLogger(LevelError)

	l.Error("reconcile failed", Err(errors.New("connection refused")))
	entry := decodeEntry(t, buf)
	assert.Equal(t, "connection refused", entry.Fields["error"])

	buf.Reset()
	l.Error("no cause", Err(nil))
	entry = decodeEntry(t, buf)
	assert.Nil(t, entry.Fields["error"])
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"INFO", LevelInfo},
		{"unknown", LevelInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseLevel(tc.in), tc.in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	l, _ := captureLogger(LevelInfo)

	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))

	// A bare context yields a usable default logger.
	assert.NotNil(t, FromContext(context.Background()))
}
