package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets how many events may wait for delivery.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.queueSize = n }
}

// WithRetryDelays sets the wait before each retry. Its length is the number
// of retries.
func WithRetryDelays(delays ...time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

// WithPublishTimeout bounds a single delivery attempt.
func WithPublishTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = t }
}

// Dispatcher hands stage changes to a Publisher off the request path. It
// implements the visit service's stage notifier. Events are dropped, with a
// warning, when the queue is full.
type Dispatcher struct {
	pub         Publisher
	logger      zerolog.Logger
	queueSize   int
	retryDelays []time.Duration
	timeout     time.Duration

	queue chan flowmodel.StageChangeEvent
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewDispatcher starts a dispatcher delivering to pub. Call Close to drain
// it.
func NewDispatcher(pub Publisher, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pub:         pub,
		logger:      logger,
		queueSize:   1024,
		retryDelays: []time.Duration{100 * time.Millisecond, time.Second, 5 * time.Second},
		timeout:     10 * time.Second,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	d.queue = make(chan flowmodel.StageChangeEvent, d.queueSize)
	go d.run()
	return d
}

// StageChanged queues ev for delivery.
func (d *Dispatcher) StageChanged(_ context.Context, ev flowmodel.StageChangeEvent) {
	select {
	case <-d.stop:
		d.logger.Warn().Str("flow_id", ev.FlowID).Msg("event dispatcher closed, dropping event")
		return
	default:
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn().Str("flow_id", ev.FlowID).Str("to", string(ev.To)).Msg("event queue full, dropping event")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev flowmodel.StageChangeEvent) {
	retries := d.retryDelays
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.pub.Publish(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		if len(retries) == 0 {
			d.logger.Error().Err(err).
				Str("flow_id", ev.FlowID).
				Str("tenant_id", ev.TenantID).
				Int("attempts", attempt).
				Msg("failed to publish stage event")
			return
		}
		wait := retries[0]
		retries = retries[1:]
		d.logger.Warn().Err(err).Str("flow_id", ev.FlowID).Int("attempt", attempt).Msg("publish failed, retrying")
		select {
		case <-time.After(wait):
		case <-d.stop:
			// Shutting down: one more try, no more waiting.
			retries = nil
		}
	}
}

// Close stops accepting events, delivers what is queued, and closes the
// publisher.
func (d *Dispatcher) Close() error {
	d.once.Do(func() { close(d.stop) })
	<-d.done
	return d.pub.Close()
}
