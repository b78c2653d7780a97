package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

func plain() *bool {
	b := false
	return &b
}

func newPretty(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Writer: buf, Level: level, Environment: "development", Color: plain()})
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		format      string
		wantJSON    bool
	}{
		{"production uses json", "production", "", true},
		{"development uses pretty", "development", "", false},
		{"staging uses pretty", "staging", "", false},
		{"explicit format wins", "development", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Writer: &buf, Environment: tt.environment, Format: tt.format, Color: plain()})
			l.Info("test")

			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"test"`)
			} else {
				assert.Contains(t, buf.String(), "INF test")
			}
		})
	}
}

func TestNew_ColorOnlyWhenForcedOrTerminal(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Writer: &buf}).Info("hello")
	assert.NotContains(t, buf.String(), "\033[", "a buffer is not a terminal")

	buf.Reset()
	forced := true
	New(Config{Writer: &buf, Color: &forced}).Info("hello")
	assert.Contains(t, buf.String(), colorBold+"hello"+colorReset)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestPrettyHandler_Attributes(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelDebug)

	l.Info("content archived", "hash", "0123456789abcdef", "created", true, "tags_added", 2)

	out := buf.String()
	assert.Contains(t, out, "INF content archived hash=0123456789abcdef created=true tags_added=2")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestPrettyHandler_QuotesAmbiguousStrings(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	l.Info("list images", "query", "cat -outdoor", "empty", "")

	assert.Contains(t, buf.String(), `query="cat -outdoor" empty=""`)
}

func TestPrettyHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	l.With("op", "arc-1").WithGroup("db").With("driver", "sqlite").Info("opened", "conns", 4,
		slog.Group("pool", slog.Int("idle", 2)))

	assert.Contains(t, buf.String(), "opened op=arc-1 db.driver=sqlite db.conns=4 db.pool.idle=2")
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelWarn)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	out := buf.String()
	assert.NotContains(t, out, "DBG")
	assert.NotContains(t, out, "INF")
	assert.Contains(t, out, "WRN warn")
	assert.Contains(t, out, "ERR error")
}

func TestPrettyHandler_WithSource(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, AddSource: true, Color: plain()})
	l.Info("with source")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "plain", formatValue(slog.StringValue("plain")))
	assert.Equal(t, `"a b"`, formatValue(slog.StringValue("a b")))
	assert.Equal(t, "2024-06-01T12:00:00Z", formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "1.5s", formatValue(slog.DurationValue(1500*time.Millisecond)))
	assert.Equal(t, "42", formatValue(slog.Int64Value(42)))
	assert.Equal(t, `"disk full"`, formatValue(slog.AnyValue(errors.New("disk full"))))
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	l.WithError(domainerrors.NotFound("image missing")).Info("lookup")
	assert.Contains(t, buf.String(), `error="image missing" error_code=NOT_FOUND`)

	buf.Reset()
	l.WithError(errors.New("boom")).Info("plain")
	assert.Contains(t, buf.String(), "error=boom")
	assert.NotContains(t, buf.String(), "error_code")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	l.WithField("driver", "sqlite").WithFields(map[string]any{"conns": 4}).Info("ready")

	out := buf.String()
	assert.Contains(t, out, "driver=sqlite")
	assert.Contains(t, out, "conns=4")
}

func TestFromSettings(t *testing.T) {
	l := FromSettings("production", "debug")
	require.NotNil(t, l)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}
