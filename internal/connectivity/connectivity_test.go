package connectivity

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok)
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("no connectivity value")
	}
	return false
}

func TestStaticDeduplicates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewStatic(true)
	ch := src.Subscribe(ctx)
	assert.True(t, next(t, ch))

	src.Set(true)
	select {
	case v := <-ch:
		t.Fatalf("unexpected repeat value %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	src.Set(false)
	assert.False(t, next(t, ch))
	assert.False(t, src.Online())
}

func TestMonitorFollowsProbe(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	logg := logger.New(logger.Options{ServiceName: "connectivity-test", Output: io.Discard})
	mon, err := NewMonitor(MonitorParams{
		Logger:        logg,
		ProbeURL:      srv.URL,
		Interval:      10 * time.Millisecond,
		InitialOnline: true,
		HTTPClient:    srv.Client(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := mon.Subscribe(ctx)
	assert.True(t, next(t, ch))

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	assert.False(t, next(t, ch), "503 means offline")

	healthy.Store(true)
	assert.True(t, next(t, ch))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not stop")
	}
}

func TestMonitorUnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	logg := logger.New(logger.Options{ServiceName: "connectivity-test", Output: io.Discard})
	mon, err := NewMonitor(MonitorParams{Logger: logg, ProbeURL: url, Timeout: time.Second})
	require.NoError(t, err)
	assert.False(t, mon.Probe(context.Background()))
}

func TestNewMonitorValidates(t *testing.T) {
	_, err := NewMonitor(MonitorParams{ProbeURL: "http://x"})
	assert.Error(t, err)
	logg := logger.New(logger.Options{Output: io.Discard})
	_, err = NewMonitor(MonitorParams{Logger: logg})
	assert.Error(t, err)
}
