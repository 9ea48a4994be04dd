// Package notify implements a single-slot, self-expiring advisory channel.
//
// At most one notification is active. Notify replaces whatever is active and
// restarts the expiry countdown; there is no backlog and no history.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/domain"
)

// DefaultTTL is how long a notification stays active when not replaced
const DefaultTTL = 5 * time.Second

// Channel holds the active notification
type Channel struct {
	mu       sync.Mutex
	clock    Clock
	ttl      time.Duration
	logger   *zap.Logger
	onChange func()

	active *domain.Notification
	timer  Timer
	// gen increments on every Notify so a timer that already fired but lost
	// the race for mu cannot clear a newer notification
	gen    uint64
	closed bool
}

// Option configures a Channel
type Option func(*Channel)

// WithClock injects the time source
func WithClock(c Clock) Option {
	return func(ch *Channel) { ch.clock = c }
}

// WithTTL overrides DefaultTTL
func WithTTL(d time.Duration) Option {
	return func(ch *Channel) {
		if d > 0 {
			ch.ttl = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(ch *Channel) { ch.logger = l }
}

// OnChange registers a hook run (without the lock held) after a notification
// is set or expires
func OnChange(fn func()) Option {
	return func(ch *Channel) { ch.onChange = fn }
}

// New creates a Channel
func New(opts ...Option) *Channel {
	ch := &Channel{
		clock:  SystemClock(),
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Notify sets the active notification, replacing any previous one
func (c *Channel) Notify(kind domain.NotificationKind, message string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.active = &domain.Notification{
		Kind:      kind,
		Message:   message,
		ExpiresAt: c.clock.Now().Add(c.ttl),
	}
	c.timer = c.clock.AfterFunc(c.ttl, func() { c.expire(gen) })
	c.mu.Unlock()

	c.logger.Debug("notification set",
		zap.String("kind", string(kind)),
		zap.String("message", message),
	)
	c.changed()
}

func (c *Channel) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.active == nil {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.timer = nil
	c.mu.Unlock()

	c.logger.Debug("notification expired")
	c.changed()
}

// Active returns the current notification, if any
func (c *Channel) Active() (domain.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return domain.Notification{}, false
	}
	return *c.active, true
}

// Dismiss clears the active notification early
func (c *Channel) Dismiss() {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	c.active = nil
	c.timer = nil
	c.mu.Unlock()
	c.changed()
}

// Close cancels any pending expiry. Later Notify calls are ignored
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.closed = true
}

func (c *Channel) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
