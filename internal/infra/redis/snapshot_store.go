package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
)

// SaveSnapshot stores snap as the latest snapshot and publishes it when a
// channel is configured.
func (c *Client) SaveSnapshot(ctx context.Context, snap fleet.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.latestKey(), payload, c.cfg.TTL)
	if c.cfg.Channel != "" {
		pipe.Publish(ctx, c.cfg.Channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the stored snapshot, or nil when none is stored or
// it has expired.
func (c *Client) LatestSnapshot(ctx context.Context) (*fleet.Snapshot, error) {
	payload, err := c.rdb.Get(ctx, c.latestKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap fleet.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Subscribe delivers published snapshots until ctx ends. Malformed payloads
// are skipped.
func (c *Client) Subscribe(ctx context.Context) (<-chan fleet.Snapshot, error) {
	if c.cfg.Channel == "" {
		return nil, errors.New("redis: no snapshot channel configured")
	}

	sub := c.rdb.Subscribe(ctx, c.cfg.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan fleet.Snapshot)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap fleet.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
