package transactions

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/config"
)

// Locker is the slice of Store the auto-lock pass needs.
type Locker interface {
	LockOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// AutoLocker periodically locks transactions past a grace age. Locked rows
// reject update and delete, which freezes historical months against edits.
// Each pass routes affected companies through the analytics notifier because
// locking changes what mutations are allowed, and the original mutation burst
// may still be mid-flight.
type AutoLocker struct {
	Store    Locker
	Notifier AnalyticsNotifier
	Logger   *logrus.Logger

	Interval time.Duration
	LockAge  time.Duration
	now      func() time.Time
}

func NewAutoLocker(store Locker, notifier AnalyticsNotifier, logger *logrus.Logger) *AutoLocker {
	return &AutoLocker{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		Interval: time.Minute,
		LockAge:  5 * time.Minute,
		now:      time.Now,
	}
}

func (a *AutoLocker) Run(ctx context.Context) {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.lockPass(ctx)
		}
	}
}

func (a *AutoLocker) lockPass(ctx context.Context) {
	cutoff := a.now().Add(-a.LockAge)
	companyIds, err := a.Store.LockOlderThan(ctx, cutoff)
	if err != nil {
		config.LogError(a.Logger, "transactions", "lockPass", "lock older than", cutoff, err)
		return
	}
	if len(companyIds) == 0 {
		return
	}
	for _, companyId := range companyIds {
		a.Notifier.OnTransactionMutated(ctx, companyId)
	}
	if a.Logger != nil {
		a.Logger.WithFields(logrus.Fields{
			"module":    "transactions",
			"companies": len(companyIds),
		}).Info("auto-lock pass completed")
	}
}
