package server

import (
	"net/http"
	"sync"

	"github.com/db-tech/conbee2panel/internal/config"

	lru "github.com/hashicorp/golang-lru"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterStoreSize = 1024

// limiterStore keeps one token bucket per client. The least recently seen
// clients are evicted once the store is full.
type limiterStore struct {
	mu    sync.Mutex
	cache *lru.Cache
	limit rate.Limit
	burst int
}

func newLimiterStore(cfg config.RateLimitConfig, size int) (*limiterStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &limiterStore{
		cache: cache,
		limit: rate.Limit(cfg.ActionsPerSecond),
		burst: cfg.Burst,
	}, nil
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.cache.Get(key); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.cache.Add(key, l)
	return l
}

func (s *limiterStore) Allow(key string) bool {
	return s.get(key).Allow()
}

// RateLimit rejects actions beyond the configured rate per client IP.
func (s *Server) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.limiters.Allow(c.RealIP()) {
				s.logger.Warn("rate limit exceeded", zap.String("ip", c.RealIP()), zap.String("path", c.Path()))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
