package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: "WARN", want: zerolog.WarnLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, getLogLevel(tt.in))
		})
	}
}

func TestContextLogger(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	ctx := AddLoggerToContext(context.Background(), "warn", true)
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	require.NotNil(t, FromContext(ctx))

	l := zerolog.Nop()
	ctx = WithLogger(context.Background(), &l)
	require.Same(t, &l, FromContext(ctx))

	require.NotNil(t, FromContext(context.Background()))
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	event := a.Log(AuditNotificationSent, "kohaku-001", "run-1", map[string]interface{}{"message": "hello"})
	require.NotEmpty(t, event.EventID)
	require.Equal(t, fixed, event.Timestamp)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	require.Equal(t, event.EventID, got["event_id"])
	require.Equal(t, AuditNotificationSent, got["event_type"])
	require.Equal(t, "kohaku-001", got["device"])
	require.Equal(t, "run-1", got["run_id"])
	require.Equal(t, "hello", got["message"])
}

func TestAuditLoggerIgnoresGlobalLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	var buf bytes.Buffer
	NewAuditLogger(&buf).Log(AuditFingerprintStored, "kohaku-001", "", nil)
	require.Equal(t, 1, strings.Count(buf.String(), "\n"))
	require.NotContains(t, buf.String(), "run_id")
}

func TestNilAuditLogger(t *testing.T) {
	a := NewAuditLogger(nil)
	require.Nil(t, a)
	require.Equal(t, AuditEvent{}, a.Log(AuditNotificationFailed, "x", "y", nil))
}

func TestFileAuditWriter(t *testing.T) {
	w, err := NewFileAuditWriter("")
	require.NoError(t, err)
	require.Nil(t, w)

	path := filepath.Join(t.TempDir(), "audit.log")
	w, err = NewFileAuditWriter(path)
	require.NoError(t, err)
	NewAuditLogger(w).Log(AuditFingerprintStored, "kohaku-001", "run-1", nil)
	require.NoError(t, w.Close())
	require.FileExists(t, path)

	_, err = NewFileAuditWriter(filepath.Join(t.TempDir(), "missing", "audit.log"))
	require.Error(t, err)
}
