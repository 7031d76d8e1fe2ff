package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/mfc-shop/mfc-shop/pkg/kafka"
)

const finalFlushTimeout = 5 * time.Second

// Sink accepts batches of events. *kafka.Producer is the production sink.
type Sink interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers tracked events and hands them to a Sink in batches of
// up to batchSize, or every flushInterval, whichever comes first. Track
// never blocks: when the buffer is full the event is dropped.
type Collector struct {
	sink          Sink
	eventCh       chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(sink Sink, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		sink:          sink,
		eventCh:       make(chan kafka.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the batching loop. Cancelling ctx flushes what is buffered
// but does not stop the loop: events tracked during shutdown are still
// accepted, and only Close ends it with a final flush.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		stop := ctx.Done()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
					c.flush(flushCtx, batch)
					cancel()
					return
				}
				batch = append(batch, event)
				if len(batch) >= c.batchSize {
					c.flush(ctx, batch)
					batch = make([]kafka.Event, 0, c.batchSize)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					c.flush(ctx, batch)
					batch = make([]kafka.Event, 0, c.batchSize)
				}
			case <-stop:
				stop = nil
				ctx = context.WithoutCancel(ctx)
				flushCtx, cancel := context.WithTimeout(ctx, finalFlushTimeout)
				c.flush(flushCtx, c.drain(batch))
				cancel()
				batch = make([]kafka.Event, 0, c.batchSize)
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track queues event under key, which selects the Kafka partition.
func (c *Collector) Track(key string, event any) {
	select {
	case c.eventCh <- kafka.Event{Key: key, Value: event}:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "key", key)
	}
}

// Close flushes what is buffered and stops the collector. Track must not be
// called afterwards.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

// BufferCap is the number of events Track can queue before dropping.
func (c *Collector) BufferCap() int {
	return cap(c.eventCh)
}

// BufferLen returns the number of events waiting to be batched.
func (c *Collector) BufferLen() int {
	return len(c.eventCh)
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.sink.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics batch published", "events", len(batch))
}
