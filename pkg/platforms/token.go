package platforms

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
)

// Token is a short-lived access token as returned by a platform's token
// endpoint.
type Token struct {
	Value    string
	Lifetime time.Duration
}

// TokenFunc exchanges the long-lived credential for a fresh access token.
type TokenFunc func(ctx context.Context) (Token, error)

// TokenSource caches one access token and refreshes it before expiry. The
// token is reused while now < expiry - lifetime/10; concurrent refreshes for
// the same source collapse into a single flight, and a failed exchange is
// retried at most once before surfacing AUTH_ERROR.
type TokenSource struct {
	fetch TokenFunc
	now   func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	token    string
	expiry   time.Time
	lifetime time.Duration
}

// NewTokenSource builds a source around the given exchange function.
func NewTokenSource(fetch TokenFunc) *TokenSource {
	return &TokenSource{fetch: fetch, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *TokenSource) WithClock(now func() time.Time) *TokenSource {
	if now != nil {
		s.now = now
	}
	return s
}

// Token returns a valid access token, refreshing if the cached one is absent
// or inside its safety margin.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if cached, ok := s.cached(); ok {
		return cached, nil
	}

	value, err, _ := s.group.Do("token", func() (any, error) {
		// Another flight may have refreshed while this one queued.
		if cached, ok := s.cached(); ok {
			return cached, nil
		}

		token, err := s.fetch(ctx)
		if err != nil {
			token, err = s.fetch(ctx)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAuth, err, "acquire access token")
		}

		s.store(token)
		return token.Value, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate drops the cached token so the next call re-acquires.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiry = time.Time{}
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	margin := s.lifetime / 10
	if !s.now().Before(s.expiry.Add(-margin)) {
		return "", false
	}
	return s.token, true
}

func (s *TokenSource) store(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token.Value
	s.lifetime = token.Lifetime
	s.expiry = s.now().Add(token.Lifetime)
}
