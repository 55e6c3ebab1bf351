// Package directory is the etcd-backed service directory: a watch over the
// route registry feeds the synchronizer, and lease-bound tethers announce
// this service while the registrar considers it live.
package directory

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type Client struct {
	etcd       *clientv3.Client
	instanceID string
	sessionTTL int
	log        zerolog.Logger
}

func NewClient(endpoints []string, instanceID string, sessionTTLSec int, logger zerolog.Logger) (*Client, error) {
	clnt, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &Client{
		etcd:       clnt,
		instanceID: instanceID,
		sessionTTL: sessionTTLSec,
		log:        logger.With().Str("component", "directory").Logger(),
	}, nil
}

func (c *Client) NewRouteWatcher() *RouteWatcher {
	return NewRouteWatcher(c.etcd, c.log)
}

func (c *Client) Close() error {
	return c.etcd.Close()
}
