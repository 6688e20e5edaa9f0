package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))

		out = append(out, m)
	}

	return out
}

func TestLogger(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem: "test",
		JSON:      true,
		Output:    &buf,
	})

	// Default subsystem only.
	Get().Info("plain")

	// Cart ID and extra values from the context.
	ctx := With(WithCartID(t.Context(), "cart-1"), "trigger", "AddItem")
	Get(ctx).Info("enriched")

	// Overridden subsystem.
	Get(WithSubsystem(t.Context(), "overridden")).Info("overridden")

	// Muted contexts produce nothing.
	Get(WithMuted(ctx, true)).Info("muted")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "test", lines[0]["subsystem"])
	assert.NotContains(t, lines[0], "cart_id")

	assert.Equal(t, "cart-1", lines[1]["cart_id"])
	assert.Equal(t, "AddItem", lines[1]["trigger"])

	assert.Equal(t, "overridden", lines[2]["subsystem"])
}

func TestLegacy(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem:   "test",
		JSON:        true,
		MinLevel:    slog.LevelDebug,
		LegacyLevel: slog.LevelInfo,
		Output:      &buf,
	})

	log.Println("legacy")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "legacy", lines[0]["msg"])
	assert.Equal(t, "INFO", lines[0]["level"])

	ConfigureLoggingWithOptions(Options{Subsystem: "test", Output: &buf})

	log.Println("text")
	assert.Contains(t, buf.String(), "msg=text")
}

func TestExtraHandler(t *testing.T) { //nolint:paralleltest
	var primary, extra bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem: "tee",
		Output:    &primary,
		Extra:     slog.NewJSONHandler(&extra, &slog.HandlerOptions{Level: slog.LevelWarn}),
	})

	Get().Info("info only")
	Get().Warn("both")

	assert.Contains(t, primary.String(), "info only")
	assert.Contains(t, primary.String(), "both")

	lines := decodeLines(t, &extra)
	require.Len(t, lines, 1)
	assert.Equal(t, "both", lines[0]["msg"])
	assert.Equal(t, "tee", lines[0]["subsystem"])
}

func TestWithDoesNotShareValues(t *testing.T) {
	t.Parallel()

	base := With(context.Background(), "a", 1)
	left := With(base, "b", 2)
	right := With(base, "c", 3)

	assert.Equal(t, []any{"a", 1, "b", 2}, getValues(left))
	assert.Equal(t, []any{"a", 1, "c", 3}, getValues(right))
	assert.Same(t, base, With(base)) //nolint:testifylint
}

func TestParseOutput(t *testing.T) {
	t.Parallel()

	out, err := ParseOutput("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, out)

	out, err = ParseOutput("STDERR")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, out)

	_, err = ParseOutput("file")
	require.ErrorIs(t, err, ErrInvalidLogOutput)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	level, err = ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestGetCartID(t *testing.T) {
	t.Parallel()

	_, ok := GetCartID(t.Context())
	assert.False(t, ok)

	id, ok := GetCartID(WithCartID(t.Context(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestFileOutput(t *testing.T) {
	t.Parallel()

	_, err := NewFileOutput(FileOptions{})
	require.ErrorIs(t, err, ErrInvalidLogOutput)

	path := filepath.Join(t.TempDir(), "cartctl.log")

	out, err := NewFileOutput(FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l := slog.New(slog.NewJSONHandler(out, nil))
	l.Info("to file", "cart_id", "abc")
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
	assert.Contains(t, string(data), `"cart_id":"abc"`)
}
