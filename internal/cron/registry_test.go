package cron

import (
	"context"
	"slices"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	eviction := &stubJob{name: JobCartEviction}
	sweep := &stubJob{name: JobInsightsSweep}
	registry := NewRegistry(eviction, nil, sweep)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != eviction || jobs[1] != sweep {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
	if got := registry.Names(); !slices.Equal(got, []string{JobCartEviction, JobInsightsSweep}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: JobCartEviction})
	if err := registry.Register(&stubJob{name: JobCartEviction}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatalf("expected blank name error")
	}
	if len(registry.Jobs()) != 1 {
		t.Fatalf("rejected jobs must not be registered")
	}
}
