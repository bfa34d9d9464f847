package update

import (
	"context"
	"strconv"
	"sync"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/store"
)

// Tracker accumulates how long the current build has been in the foreground.
// The total is reported with every update check.
type Tracker struct {
	store   store.Store
	prefix  string
	now     func() time.Time
	mu      sync.Mutex
	started time.Time
}

func NewTracker(s store.Store, appIdentifier string, versionCode int) *Tracker {
	return &Tracker{
		store:  s,
		prefix: store.Key("usage", appIdentifier, strconv.Itoa(versionCode)),
		now:    time.Now,
	}
}

// StartUsage marks the start of a foreground period.
func (t *Tracker) StartUsage() {
	t.mu.Lock()
	t.started = t.now()
	t.mu.Unlock()
}

// StopUsage adds the time since StartUsage to the stored total.
func (t *Tracker) StopUsage(ctx context.Context) {
	t.mu.Lock()
	started := t.started
	t.started = time.Time{}
	t.mu.Unlock()
	if started.IsZero() {
		return
	}

	elapsed := t.now().Sub(started)
	if elapsed <= 0 {
		return
	}
	total := t.stored(ctx) + elapsed
	if err := t.store.Put(ctx, t.prefix, strconv.FormatInt(int64(total/time.Millisecond), 10)); err != nil {
		logging.Logger().Warnf("failed to persist usage time: %v", err)
	}
}

// UsageTime returns the stored total plus the running foreground period.
func (t *Tracker) UsageTime(ctx context.Context) time.Duration {
	total := t.stored(ctx)
	t.mu.Lock()
	if !t.started.IsZero() {
		total += t.now().Sub(t.started)
	}
	t.mu.Unlock()
	return total
}

func (t *Tracker) stored(ctx context.Context) time.Duration {
	v, err := t.store.Get(ctx, t.prefix)
	if err != nil {
		if !cstmerr.IsNotFound(err) {
			logging.Logger().Warnf("failed to read usage time: %v", err)
		}
		return 0
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
