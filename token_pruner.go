package auth

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneRetention keeps revoked tokens around for a week
const DefaultPruneRetention = 7 * 24 * time.Hour

// TokenPruner removes tokens that were revoked before the retention window
type TokenPruner struct {
	tokens    Tokens
	retention time.Duration
	logger    Logger
	now       func() time.Time
	observe   func(removed int64, err error)
}

func NewTokenPruner(tokens Tokens, retention time.Duration) *TokenPruner {
	if retention <= 0 {
		retention = DefaultPruneRetention
	}
	return &TokenPruner{
		tokens:    tokens,
		retention: retention,
		logger:    defLogger{},
		now:       time.Now,
	}
}

func (p *TokenPruner) WithLogger(logger Logger) *TokenPruner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *TokenPruner) WithClock(now func() time.Time) *TokenPruner {
	if now != nil {
		p.now = now
	}
	return p
}

// WithObserver is called after every prune run
func (p *TokenPruner) WithObserver(observe func(removed int64, err error)) *TokenPruner {
	p.observe = observe
	return p
}

// Prune deletes expired revoked tokens and returns how many were removed
func (p *TokenPruner) Prune(ctx context.Context) (int64, error) {
	before := p.now().Add(-p.retention)
	removed, err := p.tokens.PruneRevoked(ctx, before)
	if p.observe != nil {
		p.observe(removed, err)
	}
	if err != nil {
		p.logger.Error("token prune failed", "error", err)
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("pruned revoked tokens", "count", removed)
	}
	return removed, nil
}

// Schedule registers Prune on c using a standard cron spec
func (p *TokenPruner) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = p.Prune(ctx)
	})
}
