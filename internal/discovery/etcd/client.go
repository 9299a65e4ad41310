package etcd

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type Config struct {
	Endpoints   []string
	TTL         int
	DialTimeout time.Duration
}

// Client 服务注册与分布式锁共用的 etcd 连接
type Client struct{ *clientv3.Client }

func New(cfg Config) (*Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{Endpoints: cfg.Endpoints, DialTimeout: cfg.DialTimeout})
	if err != nil {
		return nil, err
	}
	return &Client{cli}, nil
}

// Register 返回 leaseID 以便优雅下线时主动撤销
func (c *Client) Register(ctx context.Context, key, val string, ttl int64) (clientv3.LeaseID, error) {
	lease, err := c.Client.Grant(ctx, ttl)
	if err != nil {
		return 0, err
	}
	if _, err = c.Client.Put(ctx, key, val, clientv3.WithLease(lease.ID)); err != nil {
		return 0, err
	}
	ch, err := c.Client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return 0, err
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, nil
}

// Deregister 删除 key 并撤销租约，key 可能已过期
func (c *Client) Deregister(ctx context.Context, key string, leaseID clientv3.LeaseID) error {
	_, _ = c.Client.Delete(ctx, key)
	if leaseID > 0 {
		_, _ = c.Client.Revoke(ctx, leaseID)
	}
	return nil
}

// Discover lists the live instances registered under prefix.
func (c *Client) Discover(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := c.Client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		m[string(kv.Key)] = string(kv.Value)
	}
	return m, nil
}

// Ping 读取一个不存在的 key，用于 readiness 检查
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Client.Get(ctx, "health", clientv3.WithCountOnly())
	return err
}

func (c *Client) Close() error { return c.Client.Close() }
