package directory

import (
	"context"
	"fmt"

	retry "github.com/avast/retry-go/v4"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/edgegate/routesyncd/internal/models"
)

// Tether is a live registration handle: while held, the service address is
// announced in the directory under a lease kept alive by the session.
type Tether struct {
	session *concurrency.Session
	key     string
}

// Acquire announces addr under a fresh lease-backed session. The session's
// keepalive runs in the background until Release.
func (c *Client) Acquire(ctx context.Context, addr models.Address) (*Tether, error) {
	var tether *Tether
	err := retry.Do(
		func() error {
			session, err := concurrency.NewSession(
				c.etcd,
				concurrency.WithContext(ctx),
				concurrency.WithTTL(c.sessionTTL),
			)
			if err != nil {
				return fmt.Errorf("creating session: %w", err)
			}
			key := serviceKey(addr, c.instanceID)
			_, err = c.etcd.KV.Put(ctx, key, c.instanceID, clientv3.WithLease(session.Lease()))
			if err != nil {
				_ = session.Close()
				return fmt.Errorf("failed to announce %s: %w", addr, err)
			}
			tether = &Tether{
				session: session,
				key:     key,
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(attempt uint, err error) {
			c.log.Warn().Err(err).Msgf("failed to acquire tether for %s, attempt: %d", addr, attempt)
		}),
	)
	if err != nil {
		return nil, err
	}
	return tether, nil
}

// Release closes the session, revoking the lease so the announcement key
// disappears immediately instead of waiting out the TTL.
func (t *Tether) Release(ctx context.Context) error {
	if err := t.session.Close(); err != nil {
		return fmt.Errorf("failed to close directory session for %s: %w", t.key, err)
	}
	return nil
}
