package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"datapipe/console/internal/bus"
	"datapipe/console/internal/config"
	"datapipe/console/internal/queue"
	"datapipe/console/internal/runner"
)

func main() {
	configPath := flag.String("config", "", "path to console.conf")
	consumer := flag.String("consumer", "", "consumer name for this worker (defaults to hostname-pid)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	name := *consumer
	if name == "" {
		hostname, _ := os.Hostname()
		name = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("connect to redis: %v", err)
	}

	q := queue.New(rdb, cfg.Queue, name, cfg.ClaimTimeout)
	r := runner.New(cfg.Scripts, bus.New(rdb), cfg.Channel)

	// Jobs claimed by a previous incarnation of this consumer go back on
	// the queue before we start claiming new ones.
	if requeued, err := q.Recover(ctx); err != nil {
		log.Printf("recover processing list: %v", err)
	} else if requeued > 0 {
		log.Printf("requeued %d unfinished jobs", requeued)
	}

	log.Printf("worker %s consuming queue %q with %d runners", name, cfg.Queue, cfg.PoolSize)
	if err := run(ctx, rdb, q, r, cfg, name); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker failed: %v", err)
	}
	log.Printf("worker %s shutdown", name)
}

func run(ctx context.Context, rdb *redis.Client, q *queue.Client, r *runner.Runner, cfg config.Config, name string) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.PoolSize; i++ {
		group.Go(func() error {
			return consume(ctx, q, r)
		})
	}
	group.Go(func() error {
		return heartbeat(ctx, rdb, name, cfg.HeartbeatInterval)
	})
	return group.Wait()
}

func consume(ctx context.Context, q *queue.Client, r *runner.Runner) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := processNext(ctx, q, r)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("process job: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// processNext claims and executes at most one job. It reports whether a job
// was claimed during the wait window.
func processNext(ctx context.Context, q *queue.Client, r *runner.Runner) (bool, error) {
	claim, err := q.Claim(ctx)
	if err != nil {
		return false, err
	}
	if claim == nil {
		return false, nil
	}

	log.Printf("job %s (%s) claimed", claim.Job.ID, claim.Job.Type)
	if err := r.Run(ctx, claim.Job); err != nil {
		// No completion signal exists for this job now; the viewer will
		// never see it finish, so the log line is the only trace.
		log.Printf("job %s stranded: %v", claim.Job.ID, err)
	}
	if err := q.Ack(ctx, claim); err != nil {
		return true, fmt.Errorf("ack job %s: %w", claim.Job.ID, err)
	}
	return true, nil
}
