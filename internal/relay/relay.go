package relay

import (
	"context"
	"log"

	"datapipe/console/internal/bus"
)

// Event is one completion notification delivered to a viewer.
type Event struct {
	Channel string
	JobID   string
}

// Forgetter discards the stored result of a delivered job.
type Forgetter interface {
	Forget(ctx context.Context, jobID string) error
}

// Relay fans completion signals out to connected viewers. Each viewer gets
// its own bus subscription whose lifetime matches the viewer's connection
// exactly: opened on Stream, released when the context is cancelled.
type Relay struct {
	bus     *bus.Bus
	results Forgetter
	channel string
}

// New returns a Relay reading the given channel.
func New(b *bus.Bus, results Forgetter, channel string) *Relay {
	return &Relay{bus: b, results: results, channel: channel}
}

// Stream opens one subscription for a viewer connection and returns its
// event stream. A subscription failure is returned to the caller. The
// returned channel is closed after ctx is cancelled and the subscription
// has been released.
//
// Malformed bus payloads are dropped: they cannot be attributed to any
// viewer. Once a signal is decoded its stored result is forgotten
// best-effort; a forget failure is logged and never withholds the event.
func (r *Relay) Stream(ctx context.Context) (<-chan Event, error) {
	sub, err := r.bus.Subscribe(ctx, r.channel)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				jobID, err := bus.Decode(msg.Payload)
				if err != nil {
					continue
				}
				if err := r.results.Forget(ctx, jobID); err != nil {
					log.Printf("forget result %s: %v", jobID, err)
				}
				select {
				case events <- Event{Channel: msg.Channel, JobID: jobID}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}
