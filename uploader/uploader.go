// Package uploader delivers committed block records to downstream
// sinks off the commit path, retrying with exponential backoff.
package uploader

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/pipeline"
	"github.com/blockberries/nullspace/types"
)

// deliveryNamespace scopes delivery IDs so the same block always gets
// the same ID, across retries and restarts.
var deliveryNamespace = uuid.MustParse("6f1c2a8e-3b7d-5e21-9a4c-0d8b7e6f5a31")

// Delivery is one block record on its way to one sink.
type Delivery struct {
	ID      uuid.UUID
	Record  types.BlockRecord
	Attempt int
}

// DeliveryID derives the idempotency key of a block record from its
// height and state root.
func DeliveryID(rec types.BlockRecord) uuid.UUID {
	buf := binary.BigEndian.AppendUint64(nil, rec.Height)
	buf = append(buf, rec.StateRoot[:]...)
	return uuid.NewSHA1(deliveryNamespace, buf)
}

// Sink receives deliveries. Deliver must be idempotent per
// Delivery.ID; errors wrapped with Permanent are not retried.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Config bounds queueing and retries. Zero fields take defaults.
type Config struct {
	// QueueSize is the per-sink backlog; the oldest delivery is
	// dropped when it is full.
	QueueSize       int
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

const (
	DefaultQueueSize       = 1024
	DefaultMaxRetries      = 8
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	return c
}

// Uploader fans committed records out to every sink. Each sink has its
// own queue and worker so a slow sink never holds back the others.
type Uploader struct {
	cfg     Config
	queues  []*sinkQueue
	logger  *slog.Logger
	metrics *metrics.UploaderMetrics
}

type sinkQueue struct {
	sink   Sink
	mu     sync.Mutex
	queue  []Delivery
	notify chan struct{}
}

// New creates an uploader for sinks. A nil logger uses slog.Default.
func New(cfg Config, sinks []Sink, logger *slog.Logger, m *metrics.UploaderMetrics) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Uploader{
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "uploader"),
		metrics: m,
	}
	for _, s := range sinks {
		u.queues = append(u.queues, &sinkQueue{sink: s, notify: make(chan struct{}, 1)})
	}
	return u
}

// Enqueue schedules rec for delivery to every sink. It never blocks.
func (u *Uploader) Enqueue(rec types.BlockRecord) {
	id := DeliveryID(rec)
	for _, q := range u.queues {
		q.mu.Lock()
		if len(q.queue) >= u.cfg.QueueSize {
			dropped := q.queue[0]
			q.queue = q.queue[1:]
			u.metrics.RecordDrop(q.sink.Name(), "queue_full")
			u.logger.Warn("Delivery queue full; dropped oldest",
				"sink", q.sink.Name(), "height", dropped.Record.Height)
		}
		q.queue = append(q.queue, Delivery{ID: id, Record: rec})
		q.mu.Unlock()
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	u.metrics.SetQueueDepth(u.Pending())
}

// Pending returns the number of queued deliveries across all sinks.
func (u *Uploader) Pending() int {
	n := 0
	for _, q := range u.queues {
		q.mu.Lock()
		n += len(q.queue)
		q.mu.Unlock()
	}
	return n
}

// Run enqueues every record from commits and delivers until ctx is
// done. Queued deliveries still pending at that point are lost; the
// event log keeps them.
func (u *Uploader) Run(ctx context.Context, commits <-chan pipeline.Committed) {
	var wg sync.WaitGroup
	for _, q := range u.queues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.work(ctx, q)
		}()
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-commits:
			if !ok {
				// Keep delivering what is queued.
				<-ctx.Done()
				return
			}
			u.Enqueue(c.Record)
		}
	}
}

func (u *Uploader) work(ctx context.Context, q *sinkQueue) {
	for {
		q.mu.Lock()
		var next *Delivery
		if len(q.queue) > 0 {
			d := q.queue[0]
			next = &d
		}
		q.mu.Unlock()

		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
			}
			continue
		}

		err := u.deliver(ctx, q.sink, next)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			u.metrics.RecordDrop(q.sink.Name(), "retries_exhausted")
			u.logger.Error("Delivery abandoned",
				"sink", q.sink.Name(),
				"height", next.Record.Height,
				"id", next.ID.String(),
				"attempts", next.Attempt,
				"err", err,
			)
		}
		q.mu.Lock()
		if len(q.queue) > 0 && q.queue[0].ID == next.ID {
			q.queue = q.queue[1:]
		}
		q.mu.Unlock()
		u.metrics.SetQueueDepth(u.Pending())
	}
}

func (u *Uploader) deliver(ctx context.Context, sink Sink, d *Delivery) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = u.cfg.InitialInterval
	exp.MaxInterval = u.cfg.MaxInterval
	// Bounded by MaxRetries instead.
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, u.cfg.MaxRetries), ctx)

	op := func() error {
		d.Attempt++
		err := sink.Deliver(ctx, *d)
		u.metrics.RecordAttempt(sink.Name(), err)
		return err
	}
	notify := func(err error, wait time.Duration) {
		u.logger.Debug("Delivery failed; retrying",
			"sink", sink.Name(), "height", d.Record.Height, "attempt", d.Attempt, "wait", wait, "err", err)
	}
	err := backoff.RetryNotify(op, policy, notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
