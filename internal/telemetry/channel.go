package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/store"

	"github.com/google/uuid"
)

// MaxPendingBatches caps how many failed batches are kept for retry.
const MaxPendingBatches = 50

const sendTimeout = 30 * time.Second

// Poster sends one newline-delimited JSON batch. *apiclient.APIClient implements it.
type Poster interface {
	PostTelemetry(ctx context.Context, endpoint string, payload []byte) error
}

// Channel queues envelopes and sends them in batches. A batch that fails to
// send is persisted in the store and retried by the next Flush.
type Channel struct {
	poster Poster
	store  store.Store
	prefix string

	mu       sync.Mutex
	queue    [][]byte
	endpoint string
	maxBatch int
	interval time.Duration
	running  bool

	flushMu sync.Mutex
	seq     atomic.Uint64
	kick    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

func NewChannel(poster Poster, s store.Store, cfg Config) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		poster:   poster,
		store:    s,
		prefix:   store.Key("telemetry", "pending") + ":",
		endpoint: cfg.EndpointURL,
		maxBatch: cfg.MaxBatchCount,
		interval: cfg.MaxBatchInterval,
		kick:     make(chan struct{}, 1),
	}
}

// Configure replaces endpoint and batching limits. Queued and persisted
// items are sent to the new endpoint.
func (ch *Channel) Configure(cfg Config) {
	cfg = cfg.withDefaults()
	ch.mu.Lock()
	ch.endpoint = cfg.EndpointURL
	ch.maxBatch = cfg.MaxBatchCount
	ch.interval = cfg.MaxBatchInterval
	ch.mu.Unlock()
}

// Endpoint returns the URL batches are currently sent to.
func (ch *Channel) Endpoint() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.endpoint
}

// Enqueue adds an envelope. Reaching the batch size triggers a send when
// the channel is running.
func (ch *Channel) Enqueue(env Envelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return cstmerr.NewTelemetryError("failed to encode envelope", err)
	}
	ch.mu.Lock()
	ch.queue = append(ch.queue, line)
	full := len(ch.queue) >= ch.maxBatch
	running := ch.running
	ch.mu.Unlock()

	if full && running {
		select {
		case ch.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Len returns the number of queued envelopes.
func (ch *Channel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.queue)
}

// Start sends queued items every batch interval until Stop.
func (ch *Channel) Start() {
	ch.mu.Lock()
	if ch.running {
		ch.mu.Unlock()
		return
	}
	ch.running = true
	ch.stop = make(chan struct{})
	ch.stopped = make(chan struct{})
	stop, stopped := ch.stop, ch.stopped
	ch.mu.Unlock()

	go ch.run(stop, stopped)
}

func (ch *Channel) run(stop, stopped chan struct{}) {
	defer close(stopped)
	for {
		ch.mu.Lock()
		interval := ch.interval
		ch.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ch.kick:
			timer.Stop()
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := ch.Flush(ctx); err != nil {
			logging.Logger().Debugf("telemetry flush failed: %v", err)
		}
		cancel()
	}
}

// Stop ends the background loop started by Start.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	if !ch.running {
		ch.mu.Unlock()
		return
	}
	ch.running = false
	stop, stopped := ch.stop, ch.stopped
	ch.mu.Unlock()

	close(stop)
	<-stopped
}

// Flush retries persisted batches and sends everything queued.
func (ch *Channel) Flush(ctx context.Context) error {
	ch.flushMu.Lock()
	defer ch.flushMu.Unlock()

	ch.mu.Lock()
	items := ch.queue
	ch.queue = nil
	endpoint, maxBatch := ch.endpoint, ch.maxBatch
	ch.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := ch.retryPersisted(ctx, endpoint); err != nil {
		keep(err)
	}

	for len(items) > 0 {
		n := min(maxBatch, len(items))
		payload := bytes.Join(items[:n], []byte("\n"))
		items = items[n:]

		if err := ch.poster.PostTelemetry(ctx, endpoint, payload); err != nil {
			keep(cstmerr.NewTelemetryError("failed to send telemetry batch", err))
			ch.persist(ctx, payload)
		}
	}
	return firstErr
}

// retryPersisted resends persisted batches oldest first. Keys start with
// the time the batch was persisted.
func (ch *Channel) retryPersisted(ctx context.Context, endpoint string) error {
	pending, err := ch.store.List(ctx, ch.prefix)
	if err != nil {
		return cstmerr.NewTelemetryError("failed to list persisted telemetry", err)
	}
	for _, key := range slices.Sorted(maps.Keys(pending)) {
		if err := ch.poster.PostTelemetry(ctx, endpoint, []byte(pending[key])); err != nil {
			// The endpoint is likely unreachable; keep the rest for later.
			return cstmerr.NewTelemetryError("failed to resend persisted telemetry", err)
		}
		if err := ch.store.Delete(ctx, key); err != nil {
			logging.Logger().Warnf("failed to delete sent telemetry batch %s: %v", key, err)
		}
	}
	return nil
}

func (ch *Channel) persist(ctx context.Context, payload []byte) {
	log := logging.Logger()
	seq := ch.seq.Add(1)
	key := fmt.Sprintf("%s%s-%08d-%s", ch.prefix, time.Now().UTC().Format("20060102T150405.000000000"), seq, uuid.NewString())
	stored, err := ch.store.PutBounded(ctx, ch.prefix, key, string(payload), MaxPendingBatches)
	if err != nil {
		log.Warnf("failed to persist telemetry batch: %v", err)
		return
	}
	if !stored {
		log.Warnf("Dropping telemetry batch, %d batches already pending", MaxPendingBatches)
	}
}

// Pending returns the number of persisted batches awaiting retry.
func (ch *Channel) Pending(ctx context.Context) int {
	pending, err := ch.store.List(ctx, ch.prefix)
	if err != nil {
		return 0
	}
	return len(pending)
}

// Close stops the background loop and sends what is left.
func (ch *Channel) Close(ctx context.Context) error {
	ch.Stop()
	return ch.Flush(ctx)
}
