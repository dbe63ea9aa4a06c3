// Package dispatch fans Information packets out to per-viewer subjects.
// Delivery is at-least-once: packets stay queued until acknowledged and
// are reoffered on every tick. A slow consumer can lose its oldest
// packets, never block the log; the loss is surfaced as a gap marker on
// the next packet through.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pixil98/go-log"

	"github.com/noesisproject/noesis/internal/messaging"
	"github.com/noesisproject/noesis/internal/perception"
	"github.com/noesisproject/noesis/internal/storage"
)

const DefaultQueueDepth = 64

// Publisher is the transport half the dispatcher needs. Satisfied by
// messaging.NatsServer.
type Publisher interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// Ack is the acknowledgement body consumers publish on the ack subject.
type Ack struct {
	Viewer   storage.Identifier `json:"viewer"`
	PacketID string             `json:"packet_id"`
}

type viewerQueue struct {
	pending []*perception.Information // oldest first, unacked
	gap     bool                      // drops happened; mark the next packet
}

// Dispatcher owns one bounded queue per viewer. Offer and Ack are safe
// for concurrent use; the world engine calls Offer, transport callbacks
// call Ack, the driver calls Tick.
type Dispatcher struct {
	mu     sync.Mutex
	pub    Publisher
	depth  int
	queues map[storage.Identifier]*viewerQueue
	unsub  func()
}

func NewDispatcher(pub Publisher, opts ...DispatcherOpt) *Dispatcher {
	d := &Dispatcher{
		pub:    pub,
		depth:  DefaultQueueDepth,
		queues: make(map[storage.Identifier]*viewerQueue),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start subscribes to the ack subject and blocks until the context ends.
// The transport may still be coming up when workers launch, so the
// subscription is retried until it lands.
func (d *Dispatcher) Start(ctx context.Context) error {
	var unsub func()
	for {
		var err error
		unsub, err = d.pub.Subscribe(messaging.SubjectAck, func(data []byte) {
			var ack Ack
			if err := json.Unmarshal(data, &ack); err != nil {
				log.GetLogger(ctx).Warnf("discarding malformed ack: %v", err)
				return
			}
			d.Ack(ack.Viewer, ack.PacketID)
		})
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	d.unsub = unsub

	<-ctx.Done()
	d.unsub()
	return nil
}

// Offer enqueues packets and attempts immediate delivery. Queue overflow
// drops the oldest unacked packet and arms the gap marker; publish
// failures leave the packet queued for the next tick.
func (d *Dispatcher) Offer(ctx context.Context, infos []*perception.Information) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, info := range infos {
		q := d.queues[info.ViewerID]
		if q == nil {
			q = &viewerQueue{}
			d.queues[info.ViewerID] = q
		}
		for len(q.pending) >= d.depth {
			log.GetLogger(ctx).Warnf("viewer %s queue full, dropping packet %s", info.ViewerID, q.pending[0].PacketID)
			q.pending = q.pending[1:]
			q.gap = true
		}
		if q.gap {
			info.GapBefore = true
			q.gap = false
		}
		q.pending = append(q.pending, info)
		d.deliver(ctx, info)
	}
}

// Ack removes a delivered packet from its viewer's queue.
func (d *Dispatcher) Ack(viewer storage.Identifier, packetID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[viewer]
	if q == nil {
		return
	}
	for i, info := range q.pending {
		if info.PacketID == packetID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Tick reoffers every unacked packet. Duplicate deliveries are fine:
// packet ids are idempotent.
func (d *Dispatcher) Tick(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, q := range d.queues {
		for _, info := range q.pending {
			d.deliver(ctx, info)
		}
	}
	return nil
}

// Pending reports the number of unacked packets for a viewer.
func (d *Dispatcher) Pending(viewer storage.Identifier) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[viewer]
	if q == nil {
		return 0
	}
	return len(q.pending)
}

// Drop discards a viewer's queue, for viewers that leave the world.
func (d *Dispatcher) Drop(viewer storage.Identifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, viewer)
}

// deliver publishes one packet. Failures are delivery failures, not world
// failures: the packet stays pending and the next tick retries.
func (d *Dispatcher) deliver(ctx context.Context, info *perception.Information) {
	data, err := json.Marshal(info)
	if err != nil {
		log.GetLogger(ctx).Errorf("marshalling packet %s: %v", info.PacketID, err)
		return
	}
	if err := d.pub.Publish(messaging.InfoSubject(info.ViewerID), data); err != nil {
		log.GetLogger(ctx).Warnf("delivering packet %s: %v", info.PacketID, err)
	}
}
