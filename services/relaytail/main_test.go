package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/logger"
)

// brokenWriter имитирует клиента, оборвавшего соединение.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenWriter) WriteHeader(status int) { w.status = status }

func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestStatsHandle(t *testing.T) {
	at := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	st := &stats{counts: make(map[event.Type]int)}
	st.add(event.Event{Type: event.NewMessage, At: at.Add(-time.Minute)})
	st.add(event.Event{Type: event.NewMessage, At: at})
	st.add(event.Event{Type: event.ChatCreated, At: at})

	rec := httptest.NewRecorder()
	st.handle(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Counts map[event.Type]int `json:"counts"`
		LastAt time.Time          `json:"last_at"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, map[event.Type]int{event.NewMessage: 2, event.ChatCreated: 1}, got.Counts)
	assert.True(t, at.Equal(got.LastAt))
}

func TestHandlers_LogWriteErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetZap(zap.New(core))
	logger.SetLevel("info")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"stats", (&stats{counts: make(map[event.Type]int)}).handle, "stats encode: connection reset"},
		{"health", health, "health write: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.handler(&brokenWriter{}, httptest.NewRequest(http.MethodGet, "/", nil))
			logger.Flush(time.Second)
			require.Eventually(t, func() bool {
				return logs.FilterMessageSnippet(tt.want).Len() == 1
			}, time.Second, 5*time.Millisecond)
			assert.Equal(t, zapcore.ErrorLevel, logs.FilterMessageSnippet(tt.want).All()[0].Level)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
