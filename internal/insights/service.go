// Package insights serves seller and product insights through small
// in-memory caches. The caches are advisory: an empty cache only costs a
// remote call.
package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/localcart/pkg/config"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/lrucache"
	"github.com/angelmondragon/localcart/pkg/marketplace"
	"golang.org/x/sync/singleflight"
)

const (
	CacheSellerDemand    = "seller_demand"
	CachePriceCoach      = "price_coach"
	CacheRecommendations = "recommended_listings"
)

type remoteInsights interface {
	SellerDemand(ctx context.Context, sellerID string) (*marketplace.SellerDemand, error)
	PriceCoach(ctx context.Context, productID string) (*marketplace.PriceCoach, error)
	RecommendedListings(ctx context.Context, productID string) ([]marketplace.RecommendedListing, error)
}

type cacheRecorder interface {
	Hit(cache string)
	Miss(cache string)
	Purged(cache string, n int)
}

// Params wires the insights service.
type Params struct {
	Logger  *logger.Logger
	Remote  remoteInsights
	Config  config.CacheConfig
	Metrics cacheRecorder
	Now     func() time.Time
}

// Service is a read-through cache in front of the marketplace insight
// endpoints.
type Service struct {
	logg    *logger.Logger
	remote  remoteInsights
	metrics cacheRecorder

	demand          *lrucache.Cache[string, marketplace.SellerDemand]
	priceCoach      *lrucache.Cache[string, marketplace.PriceCoach]
	recommendations *lrucache.Cache[string, []marketplace.RecommendedListing]

	flight singleflight.Group
}

// NewService builds the insight caches from cfg.
func NewService(params Params) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote insights client required")
	}
	var opts []lrucache.Option
	if params.Now != nil {
		opts = append(opts, lrucache.WithClock(params.Now))
	}
	cfg := params.Config

	demand, err := lrucache.New[string, marketplace.SellerDemand](cfg.SellerDemandCapacity, cfg.SellerDemandTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("seller demand cache: %w", err)
	}
	priceCoach, err := lrucache.New[string, marketplace.PriceCoach](cfg.PriceCoachCapacity, cfg.PriceCoachTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("price coach cache: %w", err)
	}
	recommendations, err := lrucache.New[string, []marketplace.RecommendedListing](cfg.RecommendationsCapacity, cfg.RecommendationsTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("recommendations cache: %w", err)
	}

	return &Service{
		logg:            params.Logger,
		remote:          params.Remote,
		metrics:         params.Metrics,
		demand:          demand,
		priceCoach:      priceCoach,
		recommendations: recommendations,
	}, nil
}

// SellerDemand returns the demand snapshot for sellerID.
func (s *Service) SellerDemand(ctx context.Context, sellerID string) (marketplace.SellerDemand, error) {
	return readThrough(ctx, s, CacheSellerDemand, s.demand, sellerID, func(ctx context.Context, id string) (marketplace.SellerDemand, error) {
		out, err := s.remote.SellerDemand(ctx, id)
		if err != nil {
			return marketplace.SellerDemand{}, err
		}
		return *out, nil
	})
}

// PriceCoach returns the pricing suggestion for productID.
func (s *Service) PriceCoach(ctx context.Context, productID string) (marketplace.PriceCoach, error) {
	return readThrough(ctx, s, CachePriceCoach, s.priceCoach, productID, func(ctx context.Context, id string) (marketplace.PriceCoach, error) {
		out, err := s.remote.PriceCoach(ctx, id)
		if err != nil {
			return marketplace.PriceCoach{}, err
		}
		return *out, nil
	})
}

// RecommendedListings returns listings recommended alongside productID.
func (s *Service) RecommendedListings(ctx context.Context, productID string) ([]marketplace.RecommendedListing, error) {
	return readThrough(ctx, s, CacheRecommendations, s.recommendations, productID, s.remote.RecommendedListings)
}

// PurgeExpired drops expired entries from every cache and returns how many
// were removed.
func (s *Service) PurgeExpired() int {
	counts := map[string]int{
		CacheSellerDemand:    s.demand.PurgeExpired(),
		CachePriceCoach:      s.priceCoach.PurgeExpired(),
		CacheRecommendations: s.recommendations.PurgeExpired(),
	}
	total := 0
	for name, n := range counts {
		if s.metrics != nil {
			s.metrics.Purged(name, n)
		}
		total += n
	}
	return total
}

// Invalidate empties every cache.
func (s *Service) Invalidate() {
	s.demand.Purge()
	s.priceCoach.Purge()
	s.recommendations.Purge()
}

// readThrough collapses concurrent misses for one key into a single remote
// call. Failed lookups are not cached.
func readThrough[V any](
	ctx context.Context,
	s *Service,
	name string,
	cache *lrucache.Cache[string, V],
	key string,
	load func(ctx context.Context, key string) (V, error),
) (V, error) {
	var zero V
	key = strings.TrimSpace(key)
	if key == "" {
		return zero, pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	if v, ok := cache.Get(key); ok {
		s.hit(name)
		return v, nil
	}
	s.miss(name)

	v, err, shared := s.flight.Do(name+":"+key, func() (any, error) {
		if v, ok := cache.Get(key); ok {
			return v, nil
		}
		v, err := load(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		cache.Put(key, v)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	if shared {
		s.logg.Debug(s.logg.WithField(ctx, "cache", name), "insight lookup shared")
	}
	return v.(V), nil
}

func (s *Service) hit(name string) {
	if s.metrics != nil {
		s.metrics.Hit(name)
	}
}

func (s *Service) miss(name string) {
	if s.metrics != nil {
		s.metrics.Miss(name)
	}
}
