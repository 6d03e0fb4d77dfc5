package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/stream"
)

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 3 * time.Second
)

// MonitorParams configure a Monitor.
type MonitorParams struct {
	Logger        *logger.Logger
	ProbeURL      string
	Interval      time.Duration
	Timeout       time.Duration
	InitialOnline bool
	HTTPClient    *http.Client
}

// Monitor probes a URL on an interval and reports reachability. Any 2xx
// response counts as online.
type Monitor struct {
	logg     *logger.Logger
	probeURL string
	interval time.Duration
	client   *http.Client
	state    *stream.Broadcaster[bool]
}

// NewMonitor builds a Monitor. Call Run to start probing.
func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	probeURL := strings.TrimSpace(params.ProbeURL)
	if probeURL == "" {
		return nil, fmt.Errorf("probe url required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	client := params.HTTPClient
	if client == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Monitor{
		logg:     params.Logger,
		probeURL: probeURL,
		interval: interval,
		client:   client,
		state:    newState(params.InitialOnline),
	}, nil
}

func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	return m.state.Subscribe(ctx)
}

// Online returns the last observed state.
func (m *Monitor) Online() bool {
	v, _ := m.state.Value()
	return v
}

// Run probes immediately and then on every tick until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	m.check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	online := m.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	if m.state.Publish(online) {
		m.logg.Info(m.logg.WithField(ctx, "online", online), "connectivity changed")
	}
}

// Probe performs one reachability check.
func (m *Monitor) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		m.logg.Error(ctx, "build connectivity probe", err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logg.Debug(m.logg.WithField(ctx, "error", err.Error()), "connectivity probe failed")
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
