package remote

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDebounce     = time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadTimeout  = 10 * time.Second
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Option configures a Bridge
type Option func(*Bridge)

// WithClock replaces the real clock
func WithClock(clock Clock) Option {
	return func(b *Bridge) { b.clock = clock }
}

// WithDebounce sets the quiet period before a push
func WithDebounce(d time.Duration) Option {
	return func(b *Bridge) { b.debounce = d }
}

// WithWriteTimeout bounds a single remote write
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.writeTimeout = d }
}

// Stats are counters describing bridge activity
type Stats struct {
	PushesAttempted int64 `json:"pushes_attempted"`
	PushesFailed    int64 `json:"pushes_failed"`
	RemoteLoads     int64 `json:"remote_loads"`
	SkippedEmpty    int64 `json:"skipped_empty"`
	SkippedEchoes   int64 `json:"skipped_echoes"`
}

// Bridge pushes local teams changes to the remote document, debounced, and
// replaces the local teams whenever the remote document changes. Concurrent
// edits from different clients are not merged: the last remote write wins.
type Bridge struct {
	id           string
	store        *roster.Store
	remote       Store
	clock        Clock
	debounce     time.Duration
	writeTimeout time.Duration

	mu            sync.Mutex
	timer         clockwork.Timer
	timerStop     chan struct{}
	sub           Subscription
	cancelObserve func()
	cancel        context.CancelFunc
	started       bool
	closed        bool
	lastPushed    models.Teams // last snapshot this bridge wrote

	// pushes are written one at a time so they land in order
	pushMu sync.Mutex

	pushesAttempted atomic.Int64
	pushesFailed    atomic.Int64
	remoteLoads     atomic.Int64
	skippedEmpty    atomic.Int64
	skippedEchoes   atomic.Int64
}

// NewBridge creates a bridge between store and the remote document
func NewBridge(store *roster.Store, remote Store, opts ...Option) *Bridge {
	b := &Bridge{
		id:           uuid.New().String()[:8], // short ID for logging
		store:        store,
		remote:       remote,
		clock:        clockwork.NewRealClock(),
		debounce:     DefaultDebounce,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start loads the remote document once, then follows local changes outbound
// and remote changes inbound. Remote failures are logged, never returned.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.cancelObserve = b.store.Observe(b.onStoreChange)
	b.mu.Unlock()

	log.Info().
		Str("bridge_id", b.id).
		Dur("debounce", b.debounce).
		Msg("starting remote sync bridge")

	b.bootstrap(ctx)

	sub, err := b.remote.Subscribe(ctx, b.onRemoteChange, b.onRemoteError)
	if err != nil {
		log.Error().Err(err).Str("bridge_id", b.id).Msg("failed to subscribe to remote document")
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Str("bridge_id", b.id).Msg("failed to unsubscribe")
		}
		return nil
	}
	b.sub = sub
	b.mu.Unlock()

	return nil
}

// bootstrap performs the one-time initial fetch. An absent or empty document
// leaves local state alone so a first run never wipes seeded teams.
func (b *Bridge) bootstrap(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, DefaultReadTimeout)
	defer cancel()

	teams, err := b.remote.Read(readCtx)
	if err != nil {
		log.Error().Err(err).Str("bridge_id", b.id).Msg("failed to load remote document")
		return
	}
	b.apply(teams, "bootstrap")
}

func (b *Bridge) onStoreChange(source roster.ChangeSource) {
	if source != roster.SourceLocal {
		return
	}
	b.schedulePush()
}

// schedulePush replaces any pending push with one that fires after the debounce delay
func (b *Bridge) schedulePush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.cancelTimerLocked()

	timer := b.clock.NewTimer(b.debounce)
	stop := make(chan struct{})
	b.timer = timer
	b.timerStop = stop

	go b.awaitTimer(timer, stop)

	log.Debug().
		Str("bridge_id", b.id).
		Dur("duration", b.debounce).
		Msg("scheduled debounced push")
}

func (b *Bridge) awaitTimer(timer clockwork.Timer, stop chan struct{}) {
	select {
	case <-timer.Chan():
		b.mu.Lock()
		if b.closed || b.timer != timer {
			// superseded by a newer change or shut down
			b.mu.Unlock()
			return
		}
		b.timer = nil
		b.timerStop = nil
		b.mu.Unlock()

		// in-flight pushes are allowed to finish after Close
		if err := b.push(context.Background()); err != nil {
			log.Error().Err(err).Str("bridge_id", b.id).Msg("debounced push failed, waiting for next change")
		}
	case <-stop:
	}
}

// cancelTimerLocked stops the pending push, if any. b.mu must be held.
func (b *Bridge) cancelTimerLocked() {
	if b.timer == nil {
		return
	}
	stopAndDrainTimer(b.timer)
	close(b.timerStop)
	b.timer = nil
	b.timerStop = nil
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// PushNow writes the current teams immediately
func (b *Bridge) PushNow(ctx context.Context) error {
	return b.push(ctx)
}

// Flush writes the current teams right away if a debounced push is pending.
// Without pending local changes it writes nothing.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.timer == nil {
		b.mu.Unlock()
		return nil
	}
	b.cancelTimerLocked()
	b.mu.Unlock()

	return b.push(ctx)
}

func (b *Bridge) push(ctx context.Context) error {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	teams := b.store.Teams()

	writeCtx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()

	b.pushesAttempted.Add(1)
	if err := b.remote.Write(writeCtx, teams); err != nil {
		b.pushesFailed.Add(1)
		return err
	}

	b.mu.Lock()
	b.lastPushed = teams
	b.mu.Unlock()

	log.Debug().
		Str("bridge_id", b.id).
		Int("teams", len(teams)).
		Msg("pushed teams to remote document")
	return nil
}

func (b *Bridge) onRemoteChange(teams models.Teams) {
	b.mu.Lock()
	closed := b.closed
	// Our own earlier write coming back while newer local edits wait to be pushed
	echo := b.timer != nil && b.lastPushed != nil && teams.Equal(b.lastPushed)
	b.mu.Unlock()
	if closed {
		return
	}
	if echo {
		b.skippedEchoes.Add(1)
		log.Debug().Str("bridge_id", b.id).Msg("skipped echo of own push, local edits pending")
		return
	}
	b.apply(teams, "subscription")
}

func (b *Bridge) onRemoteError(err error) {
	log.Error().Err(err).Str("bridge_id", b.id).Msg("remote subscription error, keeping local state")
}

func (b *Bridge) apply(teams models.Teams, origin string) {
	if teams.IsEmpty() {
		b.skippedEmpty.Add(1)
		log.Debug().Str("bridge_id", b.id).Str("origin", origin).Msg("remote document empty, nothing to load")
		return
	}

	b.store.LoadTeamsFromStorage(teams)
	b.remoteLoads.Add(1)

	log.Info().
		Str("bridge_id", b.id).
		Str("origin", origin).
		Int("teams", len(teams)).
		Msg("loaded teams from remote document")
}

// Close stops inbound events and any scheduled push. A push already being
// written may still complete.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancelTimerLocked()
	sub := b.sub
	b.sub = nil
	if b.cancelObserve != nil {
		b.cancelObserve()
	}
	b.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	if b.cancel != nil {
		b.cancel()
	}

	log.Info().Str("bridge_id", b.id).Msg("remote sync bridge stopped")
	return err
}

// Stats returns a snapshot of the bridge counters
func (b *Bridge) Stats() Stats {
	return Stats{
		PushesAttempted: b.pushesAttempted.Load(),
		PushesFailed:    b.pushesFailed.Load(),
		RemoteLoads:     b.remoteLoads.Load(),
		SkippedEmpty:    b.skippedEmpty.Load(),
		SkippedEchoes:   b.skippedEchoes.Load(),
	}
}
