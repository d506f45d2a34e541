package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atlasmedia/adboard-backend/pkg/config"
	"github.com/atlasmedia/adboard-backend/pkg/metrics"
)

// Domain names one of the four independent cache namespaces. Each carries its
// own capacity and freshness window.
type Domain string

const (
	DomainCampaign   Domain = "campaign"
	DomainHistorical Domain = "historical"
	DomainClient     Domain = "client"
	DomainOverview   Domain = "overview"
)

// Service owns the four in-process cache domains. It is an explicit
// dependency of the orchestrator rather than package state, so tests can run
// isolated instances side by side.
type Service struct {
	stores map[Domain]*lruStore
	ttls   map[Domain]time.Duration
	met    *metrics.CacheMetrics
}

// Option configures optional Service behavior.
type Option func(*options)

type options struct {
	now func() time.Time
	met *metrics.CacheMetrics
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics wires prometheus counters for cache activity.
func WithMetrics(met *metrics.CacheMetrics) Option {
	return func(o *options) {
		o.met = met
	}
}

// NewService builds the four domains from configuration.
func NewService(cfg config.CacheConfig, opts ...Option) *Service {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc := &Service{
		stores: make(map[Domain]*lruStore, 4),
		ttls: map[Domain]time.Duration{
			DomainCampaign:   cfg.CampaignTTL,
			DomainHistorical: cfg.HistoricalTTL,
			DomainClient:     cfg.ClientTTL,
			DomainOverview:   cfg.OverviewTTL,
		},
		met: o.met,
	}

	sizes := map[Domain]int{
		DomainCampaign:   cfg.CampaignMaxEntries,
		DomainHistorical: cfg.HistoricalMaxEntries,
		DomainClient:     cfg.ClientMaxEntries,
		DomainOverview:   cfg.OverviewMaxEntries,
	}
	for domain, size := range sizes {
		domain := domain
		svc.stores[domain] = newLRUStore(size, o.now, func() {
			svc.met.IncEviction(string(domain))
		})
	}
	return svc
}

// TTL returns the configured freshness window for a domain.
func (s *Service) TTL(domain Domain) time.Duration {
	return s.ttls[domain]
}

// Key derives the cache key for a request. Parameter keys are sorted
// lexicographically so logically identical requests hash to the same key
// regardless of call-site ordering: domain:clientID:k1:v1|k2:v2.
func (s *Service) Key(domain Domain, clientID string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(string(domain))
	b.WriteByte(':')
	b.WriteString(clientID)

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte(':')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(k)
			b.WriteByte(':')
			b.WriteString(params[k])
		}
	}
	return b.String()
}

// Get returns a fresh value for key, or absent.
func (s *Service) Get(domain Domain, key string) (any, bool) {
	store, ok := s.stores[domain]
	if !ok {
		return nil, false
	}
	value, hit := store.Get(key)
	if hit {
		s.met.IncHit(string(domain))
	} else {
		s.met.IncMiss(string(domain))
	}
	return value, hit
}

// Set stores value under key with the provided TTL; a non-positive TTL falls
// back to the domain default.
func (s *Service) Set(domain Domain, key string, value any, ttl time.Duration) {
	store, ok := s.stores[domain]
	if !ok {
		return
	}
	if ttl <= 0 {
		ttl = s.ttls[domain]
	}
	store.Set(key, value, ttl)
}

// InvalidateClient removes every key referencing the client across all
// domains and returns how many entries were dropped.
func (s *Service) InvalidateClient(clientID string) int {
	if clientID == "" {
		return 0
	}
	removed := 0
	for _, store := range s.stores {
		removed += store.DeleteFunc(func(key string) bool {
			return containsSegment(key, clientID)
		})
	}
	return removed
}

// Clear wipes every domain.
func (s *Service) Clear() {
	for _, store := range s.stores {
		store.Clear()
	}
}

// Len reports the number of physical entries in one domain.
func (s *Service) Len(domain Domain) int {
	store, ok := s.stores[domain]
	if !ok {
		return 0
	}
	return store.Len()
}

// WithCache returns the cached value for key or invokes producer, stores its
// result, and returns it. Producer failures propagate and cache nothing.
func WithCache[T any](ctx context.Context, s *Service, domain Domain, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	if cached, ok := s.Get(domain, key); ok {
		if typed, ok := cached.(T); ok {
			return typed, nil
		}
		// A type mismatch means the key was reused across shapes; treat it
		// as a miss and overwrite below.
	}

	var zero T
	value, err := producer(ctx)
	if err != nil {
		return zero, fmt.Errorf("produce %s: %w", key, err)
	}
	s.Set(domain, key, value, ttl)
	return value, nil
}
