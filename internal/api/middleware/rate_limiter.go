package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

// EndpointRateLimit overrides the default limit for one path
type EndpointRateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator identifies the caller, by client IP unless overridden
	KeyGenerator func(c *fiber.Ctx) string
	// PerEndpoint limits are counted separately from the default bucket
	PerEndpoint map[string]EndpointRateLimit
}

// DefaultRateLimiterConfig returns default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    600,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

// clientLimiter tracks rate limiting state for one bucket
type clientLimiter struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter implements fixed-window rate limiting per caller
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.Max == 0 {
		config.Max = defaults.Max
	}
	if config.Window == 0 {
		config.Window = defaults.Window
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = defaults.KeyGenerator
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Stop shuts down the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		max, window := rl.config.Max, rl.config.Window
		if limit, ok := rl.config.PerEndpoint[c.Path()]; ok {
			key += "|" + c.Path()
			max, window = limit.Requests, limit.Window
		}

		now := time.Now()

		rl.mu.Lock()
		limiter, exists := rl.limiters[key]
		if !exists || now.After(limiter.windowEnd) {
			limiter = &clientLimiter{windowEnd: now.Add(window)}
			rl.limiters[key] = limiter
		}
		limiter.count++
		limiter.lastAccess = now
		count := limiter.count
		windowEnd := limiter.windowEnd
		rl.mu.Unlock()

		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > max {
			c.Set("Retry-After", strconv.Itoa(int(time.Until(windowEnd).Seconds())))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, limiter := range rl.limiters {
				// idle for two windows
				if now.Sub(limiter.lastAccess) > 2*rl.config.Window && now.After(limiter.windowEnd) {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// IdentityRateLimits caps the endpoints that run embedding models over
// several images per request
func IdentityRateLimits() map[string]EndpointRateLimit {
	return map[string]EndpointRateLimit{
		"/verify_face":           {Requests: 60, Window: time.Minute},
		"/load_reference_images": {Requests: 10, Window: time.Minute},
		"/upload_face_image":     {Requests: 20, Window: time.Minute},
	}
}
