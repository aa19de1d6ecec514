package broadcast

import (
	"context"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func snap(price float64) *models.Snapshot {
	return &models.Snapshot{Status: models.StatusOK, LatestPrice: price, UpdatedAt: time.Now()}
}

func TestPullReturnsLatest(t *testing.T) {
	b := New(4, testLogger(t))
	if b.Pull() != nil {
		t.Fatalf("expected nil before first publish")
	}
	b.Publish(context.Background(), snap(1))
	b.Publish(context.Background(), snap(2))
	if got := b.Pull(); got == nil || got.LatestPrice != 2 {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}
}

func TestSubscribeDeliversCurrentSnapshotFirst(t *testing.T) {
	b := New(4, testLogger(t))
	b.Publish(context.Background(), snap(10))

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	select {
	case got := <-ch:
		if got.LatestPrice != 10 {
			t.Fatalf("expected current snapshot first, got %v", got.LatestPrice)
		}
	case <-time.After(time.Second):
		t.Fatalf("no initial snapshot delivered")
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New(2, testLogger(t))
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 1; i <= 5; i++ {
		b.Publish(context.Background(), snap(float64(i)))
	}

	// buffer of 2: the two newest publishes survive
	first := <-ch
	second := <-ch
	if first.LatestPrice != 4 || second.LatestPrice != 5 {
		t.Fatalf("expected snapshots 4 and 5, got %v and %v", first.LatestPrice, second.LatestPrice)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %v", extra.LatestPrice)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(2, testLogger(t))
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
}

func TestUnsubscribeDoesNotAffectOthers(t *testing.T) {
	b := New(2, testLogger(t))
	id1, _ := b.Subscribe()
	id2, ch2 := b.Subscribe()
	b.Unsubscribe(id1)

	b.Publish(context.Background(), snap(42))
	select {
	case got := <-ch2:
		if got.LatestPrice != 42 {
			t.Fatalf("expected snapshot 42, got %v", got.LatestPrice)
		}
	case <-time.After(time.Second):
		t.Fatalf("remaining subscriber received nothing")
	}
	b.Unsubscribe(id2)
}

type recordingSink struct {
	topics []string
	keys   []string
}

func (r *recordingSink) Publish(ctx context.Context, topic, key string, value any) error {
	r.topics = append(r.topics, topic)
	r.keys = append(r.keys, key)
	return nil
}

func TestSinkMirrorsPublishes(t *testing.T) {
	sink := &recordingSink{}
	b := New(2, testLogger(t), WithSink(sink, "snapshots", "BTC-USD"))
	b.Publish(context.Background(), snap(1))
	b.Publish(context.Background(), snap(2))
	if len(sink.topics) != 2 || sink.topics[0] != "snapshots" || sink.keys[0] != "BTC-USD" {
		t.Fatalf("sink not mirrored: %+v", sink)
	}
}
