package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithField("user_id", "u1").WithFields(map[string]interface{}{"day": "2026-01-01"}).
		WithError(errors.New("boom")).Info("quota checked")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "quota checked", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "2026-01-01", entry["day"])
	assert.Equal(t, "boom", entry["error"])
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Info("hidden")
	logger.Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	logger.SetLevel(LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(LevelInfo, FormatJSON)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	logger := NewLogger(LevelDebug, FormatJSON).WithField("request_id", "r1")
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, GetGlobalLogger(), FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelFatal, ParseLogLevel("fatal"))
	assert.Equal(t, LevelInfo, ParseLogLevel("verbose"))
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatText)
	logger.SetOutput(&buf)

	logger.WithField("conversation_id", "c1").Infof("resolved %s", "conversation")
	out := buf.String()
	assert.True(t, strings.Contains(out, "resolved conversation"))
	assert.True(t, strings.Contains(out, "conversation_id=c1"))
}

func TestGlobalLogger_ConcurrentInitAndUse(t *testing.T) {
	previous := GetGlobalLogger()
	t.Cleanup(func() { globalLogger.Store(previous) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotNil(t, FromContext(context.Background()))
				WithFields(map[string]interface{}{"attempt": j}).Debug("retrying")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			InitGlobalLogger(LevelWarn, FormatText)
		}
	}()
	wg.Wait()

	assert.NotNil(t, GetGlobalLogger())
}
