package cron

import (
	"context"
	"fmt"
)

const (
	JobCartEviction  = "cart-eviction"
	JobInsightsSweep = "insights-sweep"
)

type cartRefresher interface {
	Refresh(ctx context.Context) (int64, error)
}

type cacheSweeper interface {
	PurgeExpired() int
}

// EvictionJob removes expired cart lines. The refresh republishes the cart
// state, so viewers see expiry without touching the cart.
type EvictionJob struct {
	cart cartRefresher
}

// NewEvictionJob builds the eviction job.
func NewEvictionJob(cart cartRefresher) (*EvictionJob, error) {
	if cart == nil {
		return nil, fmt.Errorf("cart refresher required")
	}
	return &EvictionJob{cart: cart}, nil
}

func (j *EvictionJob) Name() string { return JobCartEviction }

func (j *EvictionJob) Run(ctx context.Context) error {
	_, err := j.cart.Refresh(ctx)
	return err
}

// InsightsSweepJob drops expired insight cache entries.
type InsightsSweepJob struct {
	caches cacheSweeper
}

// NewInsightsSweepJob builds the sweep job.
func NewInsightsSweepJob(caches cacheSweeper) (*InsightsSweepJob, error) {
	if caches == nil {
		return nil, fmt.Errorf("cache sweeper required")
	}
	return &InsightsSweepJob{caches: caches}, nil
}

func (j *InsightsSweepJob) Name() string { return JobInsightsSweep }

func (j *InsightsSweepJob) Run(context.Context) error {
	j.caches.PurgeExpired()
	return nil
}
