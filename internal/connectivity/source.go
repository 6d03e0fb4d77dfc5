// Package connectivity reports whether the remote marketplace is reachable.
package connectivity

import (
	"context"

	"github.com/angelmondragon/localcart/pkg/stream"
)

// Source emits true while online. Subscribers get the current value first and
// then only changes.
type Source interface {
	Subscribe(ctx context.Context) <-chan bool
}

// Static is a manually driven Source.
type Static struct {
	state *stream.Broadcaster[bool]
}

// NewStatic builds a Static source starting at online.
func NewStatic(online bool) *Static {
	return &Static{state: newState(online)}
}

func (s *Static) Subscribe(ctx context.Context) <-chan bool {
	return s.state.Subscribe(ctx)
}

// Set updates the reported state.
func (s *Static) Set(online bool) {
	s.state.Publish(online)
}

// Online returns the current state.
func (s *Static) Online() bool {
	v, _ := s.state.Value()
	return v
}

func newState(online bool) *stream.Broadcaster[bool] {
	return stream.NewBroadcaster(
		stream.WithInitial(online),
		stream.WithEqual(func(a, b bool) bool { return a == b }),
	)
}
