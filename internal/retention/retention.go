// Package retention prunes old conversations and step checkpoints on a cron
// schedule.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/wsorch/internal/logging"
	"github.com/mohammad-safakhou/wsorch/internal/store"
)

const lockKey = "retention:lock"

// Pruner deletes rows older than cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (store.PruneResult, error)
}

// Locker is the subset of redis used to keep a sweep to one replica.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Sweeper runs PruneBefore whenever the schedule comes due.
type Sweeper struct {
	pruner   Pruner
	expr     *cronexpr.Expression
	maxAge   time.Duration
	lock     Locker
	lockTTL  time.Duration
	interval time.Duration
	now      func() time.Time
	log      *logrus.Entry

	mu   sync.Mutex
	last time.Time
}

type Option func(*Sweeper)

// WithLock guards each sweep with a redis SETNX lock.
func WithLock(l Locker, ttl time.Duration) Option {
	return func(s *Sweeper) {
		s.lock = l
		s.lockTTL = ttl
	}
}

// WithInterval sets how often Start checks the schedule.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Sweeper) { s.log = l }
}

// New parses schedule as a cron expression. The first sweep is due at the
// first schedule point after construction.
func New(p Pruner, schedule string, maxAge time.Duration, opts ...Option) (*Sweeper, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", schedule, err)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	s := &Sweeper{
		pruner:   p,
		expr:     expr,
		maxAge:   maxAge,
		lockTTL:  2 * time.Minute,
		interval: time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.last = s.now()
	return s, nil
}

// Start checks the schedule every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.WithError(err).Warn("retention sweep failed")
			}
		}
	}
}

// Tick runs a sweep if one is due and reports whether it did.
func (s *Sweeper) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.isDue(now) {
		return false, nil
	}
	if s.lock != nil {
		ok, err := s.lock.SetNX(ctx, lockKey, "1", s.lockTTL).Result()
		if err != nil {
			return false, fmt.Errorf("acquire retention lock: %w", err)
		}
		if !ok {
			s.last = now
			return false, nil
		}
		defer s.lock.Del(context.WithoutCancel(ctx), lockKey)
	}

	cutoff := now.Add(-s.maxAge)
	res, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return false, err
	}
	s.last = now
	s.log.WithFields(logrus.Fields{
		"cutoff":        cutoff.Format(time.RFC3339),
		"conversations": res.Conversations,
		"steps":         res.Steps,
	}).Info("retention sweep finished")
	return true, nil
}

func (s *Sweeper) isDue(now time.Time) bool {
	next := s.expr.Next(s.last)
	return !next.IsZero() && !next.After(now)
}
