package store

import (
	"log/slog"
	"time"
)

// Option configures a Store at construction.
type Option func(*config)

type config struct {
	middleware []Middleware
	plugins    []Plugin
	logger     *slog.Logger
	scheduler  Scheduler
	now        func() time.Time
	cacheSize  int
	warnings   bool
}

func defaultConfig() config {
	return config{
		now:      time.Now,
		warnings: true,
	}
}

// WithMiddleware appends middleware. The first middleware given is the
// outermost: its before-logic runs first and its after-logic runs last.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithPlugins appends plugins. Plugins are set up once, in order, after the
// configured middleware is installed.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *config) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithLogger sets the logger used for misuse warnings and internal errors.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithScheduler replaces the default LoopScheduler. The store does not close
// a scheduler it did not create.
func WithScheduler(s Scheduler) Option {
	return func(c *config) {
		c.scheduler = s
	}
}

// WithNow sets the time source used to stamp mutation contexts.
func WithNow(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPathCacheSize bounds the store's parsed-path cache.
func WithPathCacheSize(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

// WithWarnings toggles misuse warnings. Production builds usually turn them off.
func WithWarnings(enabled bool) Option {
	return func(c *config) {
		c.warnings = enabled
	}
}
