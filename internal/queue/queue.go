package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"datapipe/console/internal/jobs"
)

// ErrDuplicateJob is returned when a job identifier has already been
// submitted. Allowing the collision through would misattribute the eventual
// completion signal.
var ErrDuplicateJob = errors.New("job id already submitted")

// Result statuses stored alongside a job.
const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusFinished = "finished"
)

// Result is the stored record for one submitted job. It exists until the
// job's completion has been relayed (or immediately after completion for
// fire-and-forget jobs), at which point it is forgotten.
type Result struct {
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// Client is a durable work queue over Redis. Submitted jobs land on a list
// and are claimed by exactly one consumer; a claimed job stays parked on the
// consumer's processing list until acknowledged, so a crash between claim
// and execution never loses it.
type Client struct {
	rdb          *redis.Client
	queue        string
	consumer     string
	claimTimeout time.Duration
}

// New returns a queue client. consumer names this process's processing list
// and may be empty for submit-only callers.
func New(rdb *redis.Client, queue, consumer string, claimTimeout time.Duration) *Client {
	return &Client{rdb: rdb, queue: queue, consumer: consumer, claimTimeout: claimTimeout}
}

func (c *Client) queueKey() string      { return "queue:" + c.queue }
func (c *Client) processingKey() string { return "processing:" + c.consumer }

func resultKey(jobID string) string { return "result:" + jobID }

// Submit enqueues a job. The job's stored-result record is created first
// with SETNX, which doubles as the uniqueness check for the identifier.
func (c *Client) Submit(ctx context.Context, job jobs.Job) error {
	envelope, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	record, err := json.Marshal(Result{Status: StatusQueued, SubmittedAt: job.SubmittedAt})
	if err != nil {
		return fmt.Errorf("encode result record: %w", err)
	}
	created, err := c.rdb.SetNX(ctx, resultKey(job.ID), record, 0).Result()
	if err != nil {
		return fmt.Errorf("store result record: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	if err := c.rdb.LPush(ctx, c.queueKey(), envelope).Err(); err != nil {
		// Release the identifier so the caller can retry the submission.
		_ = c.rdb.Del(ctx, resultKey(job.ID)).Err()
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim holds one claimed job until it is acknowledged.
type Claim struct {
	Job jobs.Job

	raw string
}

// Claim blocks up to the claim timeout for the next job and moves it onto
// this consumer's processing list. Returns (nil, nil) when the queue stayed
// empty for the whole window.
func (c *Client) Claim(ctx context.Context) (*Claim, error) {
	raw, err := c.rdb.BRPopLPush(ctx, c.queueKey(), c.processingKey(), c.claimTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	var job jobs.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// An undecodable envelope can never execute; drop it so the
		// processing list does not hold it forever.
		_ = c.rdb.LRem(ctx, c.processingKey(), 1, raw).Err()
		return nil, fmt.Errorf("decode claimed job: %w", err)
	}

	c.setStatus(ctx, job, StatusRunning, time.Time{})
	return &Claim{Job: job, raw: raw}, nil
}

// Ack removes a claimed job from the processing list and settles its stored
// result: fire-and-forget jobs are forgotten outright, the rest are marked
// finished.
func (c *Client) Ack(ctx context.Context, claim *Claim) error {
	if err := c.rdb.LRem(ctx, c.processingKey(), 1, claim.raw).Err(); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	if claim.Job.IgnoreResult {
		return c.Forget(ctx, claim.Job.ID)
	}
	c.setStatus(ctx, claim.Job, StatusFinished, time.Now().UTC())
	return nil
}

// Forget discards the stored result for jobID. Safe to call on an already
// forgotten identifier.
func (c *Client) Forget(ctx context.Context, jobID string) error {
	if err := c.rdb.Del(ctx, resultKey(jobID)).Err(); err != nil {
		return fmt.Errorf("forget result: %w", err)
	}
	return nil
}

// Lookup returns the stored result for jobID, or nil when it has been
// forgotten or never existed.
func (c *Client) Lookup(ctx context.Context, jobID string) (*Result, error) {
	raw, err := c.rdb.Get(ctx, resultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup result: %w", err)
	}
	var record Result
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode result record: %w", err)
	}
	return &record, nil
}

// Recover requeues every job parked on this consumer's processing list.
// Intended to run once at worker start, before claiming, so jobs claimed by
// a previous incarnation that crashed are not lost.
func (c *Client) Recover(ctx context.Context) (int, error) {
	requeued := 0
	for {
		err := c.rdb.RPopLPush(ctx, c.processingKey(), c.queueKey()).Err()
		if errors.Is(err, redis.Nil) {
			return requeued, nil
		}
		if err != nil {
			return requeued, fmt.Errorf("recover processing list: %w", err)
		}
		requeued++
	}
}

// setStatus updates an existing stored-result record. Best-effort: a job
// whose record was already forgotten stays forgotten.
func (c *Client) setStatus(ctx context.Context, job jobs.Job, status string, finishedAt time.Time) {
	record, err := json.Marshal(Result{Status: status, SubmittedAt: job.SubmittedAt, FinishedAt: finishedAt})
	if err != nil {
		return
	}
	_ = c.rdb.SetXX(ctx, resultKey(job.ID), record, 0).Err()
}
