package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestMultiHandlerFansOutByLevel(t *testing.T) {
	var debug, info bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	log := slog.New(h)
	log.Debug("only debug")
	log.Info("both")

	assert.Contains(t, debug.String(), "only debug")
	assert.Contains(t, debug.String(), "both")
	assert.NotContains(t, info.String(), "only debug")
	assert.Contains(t, info.String(), "both")
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug-1))
}

func TestEventHandler(t *testing.T) {
	var events []Event
	log := slog.New(NewEventHandler(slog.LevelInfo, func(e Event) { events = append(events, e) }))
	log.With(slog.String("remote", "origin")).Info("fetch start", slog.Int("step", 1))
	log.Debug("dropped")

	require.Len(t, events, 1)
	assert.Equal(t, "INFO", events[0].Level)
	assert.Equal(t, "fetch start remote=origin step=1", events[0].Message)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestWithEventsKeepsBase(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	var events []Event
	log := WithEvents(base, slog.LevelInfo, func(e Event) { events = append(events, e) })
	log.Info("push done")

	assert.Contains(t, buf.String(), "push done")
	require.Len(t, events, 1)
	assert.Equal(t, "push done", events[0].Message)
}

func TestConsoleHandlerWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewConsoleHandler(&buf, slog.LevelInfo))
	log.Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "k=v")
	assert.NotContains(t, buf.String(), "\x1b[")
}
