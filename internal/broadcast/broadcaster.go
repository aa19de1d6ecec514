package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

// Publisher pushes snapshots to an external sink alongside the in-process
// fanout. Optional; the kafka producer satisfies it when enabled.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Broadcaster fans published snapshots out to subscribers and keeps the
// latest one for pull-style reads. Each subscriber gets a bounded
// buffered channel; when a slow subscriber's buffer is full the oldest
// pending snapshot is dropped so a stalled reader never blocks the
// publishing cycle.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan *models.Snapshot
	nextID uint64

	latest atomic.Pointer[models.Snapshot]

	buffer  int
	log     *logger.Logger
	rec     *metrics.Recorder
	sink    Publisher
	topic   string
	sinkKey string
}

type Option func(*Broadcaster)

// WithSink mirrors every published snapshot to an external publisher.
func WithSink(p Publisher, topic, key string) Option {
	return func(b *Broadcaster) {
		b.sink = p
		b.topic = topic
		b.sinkKey = key
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(b *Broadcaster) { b.rec = rec }
}

func New(buffer int, log *logger.Logger, opts ...Option) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	b := &Broadcaster{
		subs:   make(map[uint64]chan *models.Snapshot),
		buffer: buffer,
		log:    log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stores the snapshot as latest and delivers it to every
// subscriber without blocking.
func (b *Broadcaster) Publish(ctx context.Context, snap *models.Snapshot) {
	b.latest.Store(snap)

	b.mu.Lock()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- snap:
			default:
				// Full buffer: evict the oldest pending snapshot
				// and retry once with the freed slot.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
	b.mu.Unlock()

	if b.sink != nil {
		if err := b.sink.Publish(ctx, b.topic, b.sinkKey, snap); err != nil {
			b.log.Warn("snapshot sink publish failed",
				logger.String("topic", b.topic),
				logger.Error(err))
		}
	}
}

// Pull returns the most recently published snapshot, or nil before the
// first publish.
func (b *Broadcaster) Pull() *models.Snapshot {
	return b.latest.Load()
}

// Subscribe registers a new subscriber. The returned channel immediately
// carries the latest snapshot when one exists, so new clients render
// without waiting for the next cycle.
func (b *Broadcaster) Subscribe() (uint64, <-chan *models.Snapshot) {
	ch := make(chan *models.Snapshot, b.buffer)
	if snap := b.latest.Load(); snap != nil {
		ch <- snap
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()

	if b.rec != nil {
		b.rec.SetSubscribers(n)
	}
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		close(ch)
	}
	if b.rec != nil {
		b.rec.SetSubscribers(n)
	}
}
