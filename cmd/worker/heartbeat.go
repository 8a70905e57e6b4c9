package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"datapipe/console/internal/metrics"
)

// heartbeat periodically records this worker's host stats under a TTL'd
// key, so an operator (or a recovery pass) can tell live consumers from
// dead ones.
func heartbeat(ctx context.Context, rdb *redis.Client, name string, interval time.Duration) error {
	if err := writeHeartbeat(ctx, rdb, name, interval); err != nil {
		log.Printf("heartbeat failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := writeHeartbeat(ctx, rdb, name, interval); err != nil {
				log.Printf("heartbeat failed: %v", err)
			}
		}
	}
}

func writeHeartbeat(ctx context.Context, rdb *redis.Client, name string, interval time.Duration) error {
	payload, err := json.Marshal(metrics.Collect())
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	if err := rdb.Set(ctx, "heartbeat:"+name, payload, 3*interval).Err(); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}
