// Package editgate holds a transcript open for user edits and resolves it
// exactly once, either on an explicit advance or when an optional countdown
// runs out. Whichever happens first wins; the other is a no-op.
package editgate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the gate lifecycle.
type State int

const (
	AwaitingEdit State = iota
	CountdownRunning
	Resolved
)

func (s State) String() string {
	switch s {
	case AwaitingEdit:
		return "awaiting_edit"
	case CountdownRunning:
		return "countdown_running"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// Reason records what resolved the gate.
type Reason string

const (
	ReasonAdvanced Reason = "advanced"
	ReasonTimeout  Reason = "timeout"
)

var (
	ErrNotStarted     = errors.New("editgate: no transcript yet")
	ErrAlreadyStarted = errors.New("editgate: transcript already set")
	ErrResolved       = errors.New("editgate: already resolved")
	ErrAborted        = errors.New("editgate: aborted")
)

// Outcome is the single resolution of a gate.
type Outcome struct {
	Text   string
	Reason Reason
	// Elapsed is the countdown time consumed before resolution, in whole ticks.
	Elapsed time.Duration
}

// Options configures a Gate.
type Options struct {
	// Timeout is the auto-advance window. Zero disables the countdown and the
	// gate waits for an explicit Advance.
	Timeout time.Duration
	// Tick is the countdown granularity. Defaults to one second.
	Tick time.Duration
	// Clock defaults to the system clock.
	Clock Clock
	// OnTick, if set, receives the remaining time when the countdown starts
	// and after every tick that does not resolve the gate. It is called from
	// the countdown goroutine and must not block for long.
	OnTick func(remaining time.Duration)
}

// Gate is safe for concurrent use.
type Gate struct {
	opts Options

	mu      sync.Mutex
	state   State
	started bool
	text    string
	elapsed time.Duration
	outcome Outcome
	err     error
	done    chan struct{}
}

// New returns a gate in the AwaitingEdit state.
func New(opts Options) *Gate {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	return &Gate{opts: opts, done: make(chan struct{})}
}

// Start hands the transcript to the gate and, when a timeout is configured,
// starts the countdown. It may be called once.
func (g *Gate) Start(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrAlreadyStarted
	}
	if g.state == Resolved {
		return g.err
	}
	g.started = true
	g.text = text
	if g.opts.Timeout > 0 {
		g.state = CountdownRunning
		go g.countdown()
	}
	return nil
}

// Edit replaces the current text.
func (g *Gate) Edit(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Resolved {
		return ErrResolved
	}
	if !g.started {
		return ErrNotStarted
	}
	g.text = text
	return nil
}

// Advance resolves the gate with the current text. It reports whether this
// call won the race; false means the gate was already resolved or has no
// transcript yet.
func (g *Gate) Advance() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started || g.state == Resolved {
		return false
	}
	g.resolveLocked(ReasonAdvanced)
	return true
}

// Abort ends an unresolved gate without an outcome; Wait returns ErrAborted.
func (g *Gate) Abort() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Resolved {
		return
	}
	g.state = Resolved
	g.err = ErrAborted
	close(g.done)
}

// Wait blocks until the gate resolves or ctx is done.
func (g *Gate) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-g.done:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.outcome, g.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Done is closed once the gate resolves or is aborted.
func (g *Gate) Done() <-chan struct{} { return g.done }

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Text returns the current text.
func (g *Gate) Text() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.text
}

func (g *Gate) resolveLocked(r Reason) {
	g.state = Resolved
	g.outcome = Outcome{Text: g.text, Reason: r, Elapsed: g.elapsed}
	close(g.done)
}

func (g *Gate) countdown() {
	remaining := g.opts.Timeout
	if g.opts.OnTick != nil {
		g.opts.OnTick(remaining)
	}
	for remaining > 0 {
		step := g.opts.Tick
		if remaining < step {
			step = remaining
		}
		t := g.opts.Clock.NewTimer(step)
		select {
		case <-g.done:
			t.Stop()
			return
		case <-t.C():
		}
		remaining -= step

		g.mu.Lock()
		if g.state == Resolved {
			g.mu.Unlock()
			return
		}
		g.elapsed += step
		if remaining <= 0 {
			g.resolveLocked(ReasonTimeout)
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()

		if g.opts.OnTick != nil {
			g.opts.OnTick(remaining)
		}
	}
}
