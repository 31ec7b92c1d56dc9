// Package admission enforces per-identity request budgets for the render
// entry points. Each (identity, class) pair has a fixed window counter;
// rejection is immediate and carries a retry-after hint.
package admission

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/config"
)

// Class is a request class with its own budget
type Class string

const (
	ClassSingle  Class = "single"
	ClassBulk    Class = "bulk"
	ClassPreview Class = "preview"
)

// anonymousIdentity keys requests that carry no identity at all
const anonymousIdentity = "anonymous"

// counterSlack keeps a counter alive a little past its window
const counterSlack = time.Second

// Classes lists every request class
func Classes() []Class {
	return []Class{ClassSingle, ClassBulk, ClassPreview}
}

// IsValid checks if the Class is a known value
func (c Class) IsValid() bool {
	switch c {
	case ClassSingle, ClassBulk, ClassPreview:
		return true
	}
	return false
}

// Budget is the number of requests allowed per window
type Budget struct {
	Window      time.Duration
	MaxRequests int
}

func (b Budget) validate() error {
	if b.Window <= 0 || b.MaxRequests <= 0 {
		return fmt.Errorf("budget needs a positive window and max requests, got %s/%d", b.Window, b.MaxRequests)
	}
	return nil
}

// Decision is the outcome of one admission check
type Decision struct {
	Admitted   bool
	Identity   string
	Class      Class
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Err returns the rejection as an error, nil when admitted
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &techpack.AdmissionRejectedError{
		Identity:   d.Identity,
		Class:      string(d.Class),
		Limit:      d.Limit,
		RetryAfter: d.RetryAfter,
	}
}

// Store holds the window counters shared by concurrent requests.
// Increment atomically adds one to key, sets its expiry on creation and
// returns the new count.
type Store interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Stats counts admission outcomes per class
type Stats struct {
	Admitted    map[Class]int64 `json:"admitted"`
	Rejected    map[Class]int64 `json:"rejected"`
	StoreErrors int64           `json:"store_errors"`
}

type classCounters struct {
	admitted atomic.Int64
	rejected atomic.Int64
}

// Controller decides whether a request may proceed
type Controller struct {
	budgets   map[Class]Budget
	store     Store
	enabled   bool
	keyPrefix string
	now       func() time.Time
	logger    *zap.Logger

	counters    map[Class]*classCounters
	storeErrors atomic.Int64
}

// Option configures a Controller
type Option func(*Controller)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithKeyPrefix sets the namespace of counter keys
func WithKeyPrefix(prefix string) Option {
	return func(c *Controller) {
		c.keyPrefix = prefix
	}
}

// WithEnabled turns enforcement on or off. A disabled controller admits everything.
func WithEnabled(enabled bool) Option {
	return func(c *Controller) {
		c.enabled = enabled
	}
}

// NewController creates a controller with one budget per class
func NewController(budgets map[Class]Budget, store Store, opts ...Option) (*Controller, error) {
	c := &Controller{
		budgets:   make(map[Class]Budget, len(budgets)),
		store:     store,
		enabled:   true,
		keyPrefix: "admission:",
		now:       time.Now,
		logger:    zap.NewNop(),
		counters:  make(map[Class]*classCounters),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, class := range Classes() {
		b, ok := budgets[class]
		if !ok {
			return nil, fmt.Errorf("missing budget for %s requests", class)
		}
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("invalid %s budget: %w", class, err)
		}
		c.budgets[class] = b
		c.counters[class] = &classCounters{}
	}
	if c.enabled && store == nil {
		return nil, fmt.Errorf("admission store is required")
	}
	return c, nil
}

// NewControllerFromConfig builds the budgets from configuration
func NewControllerFromConfig(cfg config.AdmissionConfig, store Store, opts ...Option) (*Controller, error) {
	budgets := map[Class]Budget{
		ClassSingle:  {Window: cfg.Single.Window, MaxRequests: cfg.Single.MaxRequests},
		ClassBulk:    {Window: cfg.Bulk.Window, MaxRequests: cfg.Bulk.MaxRequests},
		ClassPreview: {Window: cfg.Preview.Window, MaxRequests: cfg.Preview.MaxRequests},
	}
	base := []Option{WithEnabled(cfg.Enabled)}
	if cfg.KeyPrefix != "" {
		base = append(base, WithKeyPrefix(cfg.KeyPrefix))
	}
	return NewController(budgets, store, append(base, opts...)...)
}

// Budget returns the configured budget of a class
func (c *Controller) Budget(class Class) (Budget, bool) {
	b, ok := c.budgets[class]
	return b, ok
}

// Enabled reports whether budgets are enforced
func (c *Controller) Enabled() bool {
	return c.enabled
}

// TryAdmit counts the request against the (identity, class) window.
// Store failures admit the request.
func (c *Controller) TryAdmit(ctx context.Context, identity string, class Class) (Decision, error) {
	budget, ok := c.budgets[class]
	if !ok {
		return Decision{}, shared.NewDomainError(techpack.CodeInvalidOptions, "unknown request class: "+string(class))
	}
	if identity == "" {
		identity = anonymousIdentity
	}

	now := c.now()
	windowStart := now.Truncate(budget.Window)
	resetAt := windowStart.Add(budget.Window)

	d := Decision{
		Admitted:  true,
		Identity:  identity,
		Class:     class,
		Limit:     budget.MaxRequests,
		Remaining: budget.MaxRequests,
		ResetAt:   resetAt,
	}
	if !c.enabled {
		return d, nil
	}

	count, err := c.store.Increment(ctx, c.counterKey(identity, class, windowStart), budget.Window+counterSlack)
	if err != nil {
		c.storeErrors.Add(1)
		c.logger.Warn("Admission store unavailable, admitting request",
			zap.String("identity", identity),
			zap.String("class", string(class)),
			zap.Error(err))
		c.counters[class].admitted.Add(1)
		return d, nil
	}

	if count > int64(budget.MaxRequests) {
		d.Admitted = false
		d.Remaining = 0
		d.RetryAfter = resetAt.Sub(now)
		c.counters[class].rejected.Add(1)
		c.logger.Debug("Admission rejected",
			zap.String("identity", identity),
			zap.String("class", string(class)),
			zap.Int64("count", count),
			zap.Duration("retry_after", d.RetryAfter))
		return d, nil
	}

	d.Remaining = budget.MaxRequests - int(count)
	c.counters[class].admitted.Add(1)
	return d, nil
}

// Admit is TryAdmit returning the rejection as *techpack.AdmissionRejectedError
func (c *Controller) Admit(ctx context.Context, identity string, class Class) error {
	d, err := c.TryAdmit(ctx, identity, class)
	if err != nil {
		return err
	}
	return d.Err()
}

func (c *Controller) counterKey(identity string, class Class, windowStart time.Time) string {
	return c.keyPrefix + string(class) + ":" + identity + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// Stats returns admission counters per class
func (c *Controller) Stats() Stats {
	s := Stats{
		Admitted:    make(map[Class]int64, len(c.counters)),
		Rejected:    make(map[Class]int64, len(c.counters)),
		StoreErrors: c.storeErrors.Load(),
	}
	for class, cc := range c.counters {
		s.Admitted[class] = cc.admitted.Load()
		s.Rejected[class] = cc.rejected.Load()
	}
	return s
}
