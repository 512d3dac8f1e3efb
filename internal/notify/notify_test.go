package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

type recordingSender struct {
	name  string
	err   error
	calls atomic.Int32
}

func (r *recordingSender) Send(context.Context, string, string) error {
	r.calls.Add(1)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"opportunity_detected", " "}, nil)

	require.NoError(t, n.Notify(context.Background(), "cycle_failed", "t", "m"))
	assert.Equal(t, int32(0), s.calls.Load())

	require.NoError(t, n.Notify(context.Background(), "opportunity_detected", "t", "m"))
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, nil)
	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, int32(1), s.calls.Load())
	assert.True(t, n.Enabled())
	assert.False(t, NewNotifier(nil, nil, nil).Enabled())
}

func TestNotifier_ContinuesAfterSenderFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.Notify(context.Background(), "e", "t", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "WETH/USDC", "5.00% uniswap_v2 -> sushiswap"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*WETH/USDC*\n5.00% uniswap_v2 -> sushiswap", got["text"])
}

func TestTelegramSender_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewTelegramSender(srv.URL, "bad", "1").Send(context.Background(), "t", "m")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDiscordSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", got["content"])
}

func TestDiscordSender_TruncatesLongContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "T", strings.Repeat("x", 3000)))
	assert.Len(t, []rune(got["content"]), discordMaxContent)
}

func TestDiscordSender_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
