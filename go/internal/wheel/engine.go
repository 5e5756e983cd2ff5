// Package wheel picks a moderator from the present members. The winner is
// drawn when the spin starts; the rotation that lands the pointer on it is
// computed up front so any renderer can animate it.
package wheel

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDuration = 4 * time.Second
	DefaultMinTurns = 2
	DefaultMaxTurns = 5
)

var (
	ErrSpinning            = errors.New("wheel is already spinning")
	ErrNotEnoughCandidates = errors.New("at least two candidates are needed to spin")
	ErrNoSoleCandidate     = errors.New("there is not exactly one candidate")
	ErrInvalidTurns        = errors.New("extra turns must be at least 2 and min must not exceed max")
	ErrClosed              = errors.New("wheel is closed")
)

// State of the engine
type State int

const (
	StateIdle State = iota
	StateSpinning
)

func (s State) String() string {
	if s == StateSpinning {
		return "spinning"
	}
	return "idle"
}

// Source draws uniform integers in [0, n). *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Recorder applies the moderation count increment for a winner
type Recorder interface {
	IncrementModerationCount(team, member string) bool
}

// Config controls spin timing and the extra full turns
type Config struct {
	Duration time.Duration
	MinTurns int
	MaxTurns int
}

// DefaultConfig returns the default spin configuration
func DefaultConfig() Config {
	return Config{
		Duration: DefaultDuration,
		MinTurns: DefaultMinTurns,
		MaxTurns: DefaultMaxTurns,
	}
}

// Validate checks the turn range
func (c Config) Validate() error {
	if c.MinTurns < 2 || c.MaxTurns < c.MinTurns {
		return ErrInvalidTurns
	}
	if c.Duration < 0 {
		return errors.New("spin duration must not be negative")
	}
	return nil
}

// SpinPlan is everything a renderer needs to animate one spin
type SpinPlan struct {
	ID            string        `json:"id"`
	Team          string        `json:"team"`
	Candidates    []string      `json:"candidates"`
	WinnerIndex   int           `json:"winnerIndex"`
	Winner        string        `json:"winner"`
	Turns         int           `json:"turns"`
	Delta         float64       `json:"delta"`
	StartRotation float64       `json:"startRotation"`
	EndRotation   float64       `json:"endRotation"`
	Duration      time.Duration `json:"duration"`
	StartedAt     time.Time     `json:"startedAt"`
}

// Resolution is reported when a spin lands
type Resolution struct {
	SpinID      string    `json:"spinId"`
	Team        string    `json:"team"`
	Winner      string    `json:"winner"`
	WinnerIndex int       `json:"winnerIndex"`
	Rotation    float64   `json:"rotation"`
	Recorded    bool      `json:"recorded"`
	ResolvedAt  time.Time `json:"resolvedAt"`
}

// Snapshot is the observable engine state
type Snapshot struct {
	Team       string   `json:"team"`
	State      string   `json:"state"`
	Candidates []string `json:"candidates"`
	Rotation   float64  `json:"rotation"`
	Result     string   `json:"result,omitempty"`
	Sole       string   `json:"sole,omitempty"`
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the real clock
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSource replaces the random source
func WithSource(src Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithConfig sets duration and turn range
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// Engine is the wheel for one team
type Engine struct {
	team     string
	recorder Recorder
	clock    clockwork.Clock
	source   Source
	config   Config

	mu         sync.Mutex
	state      State
	candidates []string
	rotation   float64
	result     string
	hasResult  bool
	pending    *SpinPlan
	timer      clockwork.Timer
	stop       chan struct{}
	closed     bool

	listenersMu sync.RWMutex
	listeners   map[int]func(Resolution)
	nextID      int
}

// NewEngine creates an idle wheel for team. Winners are recorded through recorder.
func NewEngine(team string, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		team:      team,
		recorder:  recorder,
		clock:     clockwork.NewRealClock(),
		source:    globalSource{},
		config:    DefaultConfig(),
		listeners: make(map[int]func(Resolution)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Team returns the team this wheel belongs to
func (e *Engine) Team() string {
	return e.team
}

// SetCandidates replaces the candidates. A changed set or order clears the displayed winner.
func (e *Engine) SetCandidates(names []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if slices.Equal(e.candidates, names) {
		return
	}
	e.candidates = slices.Clone(names)
	e.result = ""
	e.hasResult = false
}

// Candidates returns a copy of the current candidates
func (e *Engine) Candidates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.candidates)
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Rotation returns the accumulated rotation in degrees
func (e *Engine) Rotation() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotation
}

// Result returns the winner of the last landed spin, if it is still displayed
func (e *Engine) Result() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.hasResult
}

// SoleCandidate returns the automatic winner when there is exactly one candidate
func (e *Engine) SoleCandidate() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.candidates) != 1 {
		return "", false
	}
	return e.candidates[0], true
}

// Pending returns the plan of the spin in progress
func (e *Engine) Pending() (*SpinPlan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil, false
	}
	plan := *e.pending
	return &plan, true
}

// Snapshot returns the observable state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Team:       e.team,
		State:      e.state.String(),
		Candidates: slices.Clone(e.candidates),
		Rotation:   e.rotation,
	}
	if e.hasResult {
		s.Result = e.result
	}
	if len(e.candidates) == 1 {
		s.Sole = e.candidates[0]
	}
	return s
}

// Spin draws a winner and starts the spin. The winner is fixed here; it is
// revealed and recorded once the configured duration has elapsed.
func (e *Engine) Spin() (*SpinPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.state == StateSpinning {
		return nil, ErrSpinning
	}
	n := len(e.candidates)
	if n < 2 {
		return nil, ErrNotEnoughCandidates
	}

	winnerIndex, turns := draw(e.source, n, e.config)
	delta := SpinDelta(e.rotation, winnerIndex, n, turns)

	plan := &SpinPlan{
		ID:            uuid.New().String(),
		Team:          e.team,
		Candidates:    slices.Clone(e.candidates),
		WinnerIndex:   winnerIndex,
		Winner:        e.candidates[winnerIndex],
		Turns:         turns,
		Delta:         delta,
		StartRotation: e.rotation,
		EndRotation:   e.rotation + delta,
		Duration:      e.config.Duration,
		StartedAt:     e.clock.Now(),
	}

	e.state = StateSpinning
	e.result = ""
	e.hasResult = false
	e.rotation = plan.EndRotation
	e.pending = plan

	e.timer = e.clock.NewTimer(e.config.Duration)
	e.stop = make(chan struct{})
	go e.awaitLanding(e.timer, e.stop, plan)

	log.Debug().
		Str("team", e.team).
		Str("spin_id", plan.ID).
		Int("candidates", n).
		Int("turns", turns).
		Float64("delta", delta).
		Msg("wheel spin started")

	return plan, nil
}

func (e *Engine) awaitLanding(timer clockwork.Timer, stop <-chan struct{}, plan *SpinPlan) {
	select {
	case <-timer.Chan():
		e.land(plan)
	case <-stop:
	}
}

// land finishes the spin: the winner is shown, recorded once and announced
func (e *Engine) land(plan *SpinPlan) {
	e.mu.Lock()
	if e.closed || e.pending != plan {
		e.mu.Unlock()
		return
	}
	e.state = StateIdle
	e.pending = nil
	e.timer = nil
	e.stop = nil
	e.result = plan.Winner
	e.hasResult = true
	rotation := e.rotation
	e.mu.Unlock()

	recorded := false
	if e.recorder != nil {
		recorded = e.recorder.IncrementModerationCount(e.team, plan.Winner)
	}

	res := Resolution{
		SpinID:      plan.ID,
		Team:        e.team,
		Winner:      plan.Winner,
		WinnerIndex: plan.WinnerIndex,
		Rotation:    rotation,
		Recorded:    recorded,
		ResolvedAt:  e.clock.Now(),
	}

	log.Info().
		Str("team", e.team).
		Str("spin_id", plan.ID).
		Str("winner", plan.Winner).
		Bool("recorded", recorded).
		Msg("wheel landed")

	e.notify(res)
}

// ConfirmSoleWinner records a moderation for the only candidate
func (e *Engine) ConfirmSoleWinner() (string, error) {
	e.mu.Lock()
	if e.state == StateSpinning {
		e.mu.Unlock()
		return "", ErrSpinning
	}
	if len(e.candidates) != 1 {
		e.mu.Unlock()
		return "", ErrNoSoleCandidate
	}
	winner := e.candidates[0]
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.IncrementModerationCount(e.team, winner)
	}
	return winner, nil
}

// OnResolved registers fn to be called after every landed spin
func (e *Engine) OnResolved(fn func(Resolution)) (cancel func()) {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

func (e *Engine) notify(res Resolution) {
	e.listenersMu.RLock()
	fns := make([]func(Resolution), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(res)
	}
}

// Close stops a pending landing timer on shutdown. A spin interrupted this
// way is neither revealed nor recorded.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// SpinDelta returns how far to turn a wheel currently at rotation so that
// segment winner of n ends under the pointer after turns full revolutions
func SpinDelta(rotation float64, winner, n, turns int) float64 {
	offset := normalize(PointerAngle - MidAngle(winner, n) - rotation)
	return float64(turns)*360 + offset
}

// draw picks the winner uniformly from [0, n) and the extra turns from [MinTurns, MaxTurns]
func draw(src Source, n int, cfg Config) (winner, turns int) {
	winner = src.IntN(n)
	turns = cfg.MinTurns
	if spread := cfg.MaxTurns - cfg.MinTurns; spread > 0 {
		turns += src.IntN(spread + 1)
	}
	return winner, turns
}
