package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"datapipe/console/internal/bus"
	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
	"datapipe/console/internal/queue"
	"datapipe/console/internal/relay"
	"datapipe/console/internal/runner"
)

// Submits a job, processes it the way the worker loop does, and verifies a
// subscribed viewer sees exactly one completion event while the script got
// the marshalled arguments in input order.
func TestSubmitRunNotify(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tmpDir := t.TempDir()
	script := filepath.Join(tmpDir, "insert_data.sh")
	argsFile := filepath.Join(tmpDir, "args.out")
	body := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(rdb)
	q := queue.New(rdb, "background", "worker-test", 200*time.Millisecond)
	r := runner.New(map[jobs.Type]string{jobs.TypeInsertData: script}, b, "background")

	events, err := relay.New(b, q, "background").Stream(ctx)
	require.NoError(t, err)

	var p params.Params
	require.NoError(t, json.Unmarshal([]byte(`{"table": "t1", "drop": true}`), &p))
	require.NoError(t, q.Submit(ctx, jobs.Job{
		ID:          "abc",
		Type:        jobs.TypeInsertData,
		Params:      p,
		SubmittedAt: time.Now().UTC(),
	}))

	processed, err := processNext(ctx, q, r)
	require.NoError(t, err)
	require.True(t, processed)

	select {
	case event := <-events:
		require.Equal(t, relay.Event{Channel: "background", JobID: "abc"}, event)
	case <-time.After(2 * time.Second):
		t.Fatal("viewer never received the completion event")
	}

	select {
	case event := <-events:
		t.Fatalf("received a second event %+v, want exactly one", event)
	case <-time.After(200 * time.Millisecond):
	}

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, []string{"--table=t1", "--drop"}, strings.Fields(string(recorded)))

	// The relay forgot the stored result on delivery, and the ack must not
	// have resurrected it.
	require.Eventually(t, func() bool {
		record, err := q.Lookup(ctx, "abc")
		return err == nil && record == nil
	}, 2*time.Second, 50*time.Millisecond)
}

func TestProcessNextIdleWindow(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := queue.New(rdb, "background", "worker-test", 100*time.Millisecond)
	r := runner.New(nil, bus.New(rdb), "background")

	processed, err := processNext(context.Background(), q, r)
	require.NoError(t, err)
	require.False(t, processed)
}

func TestStrandedJobStillAcked(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	b := bus.New(rdb)
	q := queue.New(rdb, "background", "worker-test", 200*time.Millisecond)
	// No script configured for the submitted type.
	r := runner.New(map[jobs.Type]string{}, b, "background")

	sub, err := b.Subscribe(ctx, "background")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, q.Submit(ctx, jobs.Job{ID: "abc", Type: jobs.TypePipeline, SubmittedAt: time.Now().UTC()}))

	processed, err := processNext(ctx, q, r)
	require.NoError(t, err)
	require.True(t, processed)

	// No signal for a job that never ran.
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected signal %q for stranded job", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}

	// The claim was still settled; nothing is left parked for this consumer.
	entries, lerr := srv.List("processing:worker-test")
	if lerr == nil {
		require.Empty(t, entries)
	}
}

func TestHeartbeatWritesSnapshot(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, writeHeartbeat(context.Background(), rdb, "worker-test", time.Second))

	raw, err := srv.Get("heartbeat:worker-test")
	require.NoError(t, err)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &snapshot))
	require.Contains(t, snapshot, "collected_at")
	require.True(t, srv.TTL("heartbeat:worker-test") > 0)
}
