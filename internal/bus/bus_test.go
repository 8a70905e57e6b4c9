package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func receive(t *testing.T, sub *Subscription) string {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed before a message arrived")
		return msg.Payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return ""
	}
}

func TestEncodeDecode(t *testing.T) {
	payload, err := Encode("7f3c")
	require.NoError(t, err)
	require.Equal(t, `["flask-event","7f3c"]`, payload)

	jobID, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, "7f3c", jobID)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", "done"},
		{"object", `{"id":"7f3c"}`},
		{"one element", `["flask-event"]`},
		{"three elements", `["flask-event","7f3c","extra"]`},
		{"non-string element", `["flask-event",7]`},
		{"empty job id", `["flask-event",""]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.payload)
			require.Error(t, err)
		})
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	first, err := b.Subscribe(ctx, "background")
	require.NoError(t, err)
	defer first.Close()

	second, err := b.Subscribe(ctx, "background")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, b.Publish(ctx, "background", "job-1"))

	for _, sub := range []*Subscription{first, second} {
		jobID, err := Decode(receive(t, sub))
		require.NoError(t, err)
		require.Equal(t, "job-1", jobID)
	}
}

func TestLateSubscriberSeesNothing(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "background", "job-1"))

	late, err := b.Subscribe(ctx, "background")
	require.NoError(t, err)
	defer late.Close()

	select {
	case msg := <-late.Messages():
		t.Fatalf("late subscriber received %q, want nothing", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublishDoesNotCrossChannels(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "background")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, "other", "job-1"))
	require.NoError(t, b.Publish(ctx, "background", "job-2"))

	jobID, err := Decode(receive(t, sub))
	require.NoError(t, err)
	require.Equal(t, "job-2", jobID)
}
