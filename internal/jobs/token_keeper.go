// Package jobs runs the scheduled maintenance work of the service.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TokenPurger soft-deletes expired sessions.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// purgeBatch bounds one unit of work; a run loops until a batch comes back short.
const purgeBatch = 500

// TokenKeeper periodically revokes tokens whose refresh window has passed.
// It runs as the anonymous system actor.
type TokenKeeper struct {
	purger TokenPurger
	log    *logrus.Entry
	now    func() time.Time
}

func NewTokenKeeper(purger TokenPurger, log *logrus.Logger) *TokenKeeper {
	return &TokenKeeper{
		purger: purger,
		log:    log.WithField("component", "token-keeper"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce purges every expired token and returns how many were revoked.
func (k *TokenKeeper) RunOnce(ctx context.Context) (int, error) {
	now := k.now()
	total := 0
	for {
		n, err := k.purger.PurgeExpired(ctx, now, purgeBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n < purgeBatch {
			return total, nil
		}
	}
}

// Run schedules RunOnce on spec (standard cron or descriptors like
// "@every 10m") until ctx is done.
func (k *TokenKeeper) Run(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		n, err := k.RunOnce(ctx)
		if err != nil {
			k.log.WithError(err).WithField("revoked", n).Error("token purge failed")
			return
		}
		if n > 0 {
			k.log.WithField("revoked", n).Info("expired tokens revoked")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule token purge %q: %w", spec, err)
	}

	c.Start()
	k.log.WithField("schedule", spec).Info("token keeper started")
	<-ctx.Done()
	<-c.Stop().Done()
	k.log.Info("token keeper stopped")
	return nil
}
