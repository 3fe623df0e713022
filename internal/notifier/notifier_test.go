package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapSentinel/internal/model"
	"SwapSentinel/internal/retry"
)

func testNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "")
	n.BaseURL = url
	n.Retry = retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
	return n
}

func TestSendPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, testNotifier(srv.URL).Send(context.Background(), "hello"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, testNotifier(srv.URL).Notify(context.Background(), "hi"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := testNotifier(srv.URL).Notify(context.Background(), "hi")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollingAnswersCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":7,"message":{"text":"/status","chat":{"id":99}}},
				{"update_id":8,"message":{"text":" /status ","chat":{"id":42}}}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			replies <- body["text"]
			w.Write([]byte(`{"ok":true}`))
			cancel()
		}
	}))
	defer srv.Close()

	var commands []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		testNotifier(srv.URL).StartPolling(ctx, func(cmd string) string {
			commands = append(commands, cmd)
			return "pong"
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	assert.Equal(t, []string{"/status"}, commands)
	assert.Equal(t, "pong", <-replies)
}

func TestFormatStatus(t *testing.T) {
	s := Status{
		Strategy:   "rsi",
		Position:   model.LongPosition(100, time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)),
		LastPrice:  110,
		LastTick:   time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC),
		Ticks:      12,
		Healthy:    true,
		Indicators: model.Indicators{RSI: 28.4, SMA: 104.5, BollingerUpper: 112, BollingerLower: 97},
	}
	out := FormatStatus(s)
	assert.Contains(t, out, "Position: long")
	assert.Contains(t, out, "Entry: 100.0000 at 2024-01-02 03:04")
	assert.Contains(t, out, "Unrealized: +10.00%")
	assert.Contains(t, out, "(12 total)")
	assert.NotContains(t, out, "unhealthy")
	assert.Contains(t, out, "RSI(14): 28.4")
	assert.Contains(t, out, "Bands: 97.0000 / 112.0000")

	flat := FormatStatus(Status{Strategy: "rsi"})
	assert.Contains(t, flat, "Position: flat")
	assert.Contains(t, flat, "Last tick: never")
	assert.Contains(t, flat, "RPC: unhealthy")
	assert.NotContains(t, flat, "RSI(14)")
}

func TestFormatFillAndFailure(t *testing.T) {
	out := FormatFill(model.SignalBuy, 200, 100, 0.5, model.SwapResult{Signature: "SIG1"})
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "SIG1")
	assert.Contains(t, out, "unconfirmed")

	assert.Contains(t, FormatFailure(model.SignalSell, errors.New("stale quote")), "SELL not filled")
}
