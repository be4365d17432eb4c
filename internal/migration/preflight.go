package migration

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
)

const (
	defaultPingRetries     = 3
	defaultPingMaxInterval = 5 * time.Second
)

// ClusterReachable fails unless the cluster holding Target answers a ping.
// Transient connection errors are retried with exponential backoff.
type ClusterReachable struct {
	Target Pinger
	// BackOff overrides the retry policy. It is called once per Execute.
	BackOff func() backoff.BackOff
}

func (c *ClusterReachable) policy(ctx context.Context) backoff.BackOff {
	if c.BackOff != nil {
		return backoff.WithContext(c.BackOff(), ctx)
	}
	exp := backoff.NewExponentialBackOff()
	exp.MaxInterval = defaultPingMaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(exp, defaultPingRetries), ctx)
}

// Execute implements task.Task.
func (c *ClusterReachable) Execute(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With(zap.Stringer("resource", c.Target))

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.Target.Ping(ctx)
		if err != nil {
			logger.Warn("Cluster not reachable.", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, c.policy(ctx))
	if err != nil {
		return errors.Annotatef(err, "cluster of %s is not reachable", c.Target)
	}
	logger.Debug("Cluster reachable.", zap.Int("attempts", attempt))
	return nil
}

// ResourceExists fails unless Target exists.
type ResourceExists struct {
	Target Checker
}

// Execute implements task.Task.
func (r *ResourceExists) Execute(ctx context.Context) error {
	ok, err := r.Target.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("%s does not exist", r.Target)
	}
	ctxlog.FromContext(ctx).Debug("Resource exists.", zap.Stringer("resource", r.Target))
	return nil
}
