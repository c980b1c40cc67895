// Package store keeps the results of asynchronous estimations until they
// are polled or expire.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/cache"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get reports false when key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// ResultKey is the key of the result of request reqId.
func ResultKey(reqId string) string {
	return fmt.Sprintf("estimate/%s", reqId)
}

// Default returns an etcd store when an etcd address is configured and a
// memory store otherwise.
func Default() (Store, error) {
	if config.GetString(config.ETCD_ADDRESS, "") == "" {
		return NewMemory(4096), nil
	}
	cli, err := GetEtcdClient()
	if err != nil {
		return nil, err
	}
	return &Etcd{cli: cli}, nil
}

var etcdClient *clientv3.Client = nil
var clientMutex sync.Mutex

// GetEtcdClient returns the shared client of the configured etcd server.
func GetEtcdClient() (*clientv3.Client, error) {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	// reuse client
	if etcdClient != nil {
		return etcdClient, nil
	}

	etcdHost := config.GetString(config.ETCD_ADDRESS, "localhost:2379")
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{etcdHost},
		DialTimeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("Could not connect to etcd: %v", err)
	}

	etcdClient = cli
	return cli, nil
}

// Etcd stores each result under a lease lasting its TTL.
type Etcd struct {
	cli *clientv3.Client
}

func NewEtcd(cli *clientv3.Client) *Etcd {
	return &Etcd{cli: cli}
}

func (s *Etcd) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	resp, err := s.cli.Grant(ctx, secs)
	if err != nil {
		return fmt.Errorf("lease grant: %w", err)
	}
	_, err = s.cli.Put(ctx, key, string(value), clientv3.WithLease(resp.ID))
	return err
}

func (s *Etcd) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.cli.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(res.Kvs) != 1 {
		return nil, false, nil
	}
	return res.Kvs[0].Value, true, nil
}

// Memory keeps results in process, dropping the least recently used ones
// beyond its capacity.
type Memory struct {
	items *cache.Cache[[]byte]
}

func NewMemory(capacity int) *Memory {
	return &Memory{items: cache.New[[]byte](cache.NoExpiration, time.Minute, capacity)}
}

func (s *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.items.Set(key, value, ttl)
	return nil
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.items.Get(key)
	return v, ok, nil
}
