// Package pacer drives the capture cadence. An armed pacer emits ticks at
// a fixed interval; each tick may start at most one query. While a query
// is in flight further ticks are skipped outright, never queued, so a slow
// backend produces fewer frames instead of a growing backlog.
package pacer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/livevlm/livevlm-agent/internal/metrics"
)

// State is the pacer lifecycle state.
type State int

const (
	// Idle means the pacer is not ticking.
	Idle State = iota
	// Armed means the pacer is ticking and no query is in flight.
	Armed
	// Capturing means a query is in flight; ticks are skipped until Release.
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// TickFunc is invoked for each tick that wins the in-flight slot. The
// callee owns the slot and must call Release exactly once when the work
// completes, succeeds or fails.
type TickFunc func()

// Pacer emits paced ticks with one-in-flight backpressure. All methods are
// safe for concurrent use.
type Pacer struct {
	mu       sync.Mutex
	state    State
	interval time.Duration
	inFlight bool

	stopCh   chan struct{}
	rebuild  chan time.Duration
	onTick   TickFunc
	onChange func(State)

	logger *zap.Logger
}

// New creates an idle pacer. onTick runs on the pacer goroutine for each
// tick that acquires the in-flight slot; keep it short and hand the real
// work off.
func New(interval time.Duration, onTick TickFunc, logger *zap.Logger) *Pacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pacer{
		state:    Idle,
		interval: interval,
		onTick:   onTick,
		logger:   logger,
	}
}

// OnStateChange registers a callback fired after every state transition.
// Must be set before Arm.
func (p *Pacer) OnStateChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// State returns the current pacer state.
func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Arm starts the tick loop. Arming an already armed pacer is a no-op.
func (p *Pacer) Arm() {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return
	}
	p.stopCh = make(chan struct{})
	p.rebuild = make(chan time.Duration, 1)
	p.setStateLocked(Armed)
	stopCh, rebuild, interval := p.stopCh, p.rebuild, p.interval
	p.mu.Unlock()

	p.logger.Info("pacer armed", zap.Duration("interval", interval))
	go p.run(stopCh, rebuild, interval)
}

// Disarm stops the tick loop. The in-flight slot, if held, stays held until
// its owner calls Release; Disarm never cancels work already started.
// Disarming an idle pacer is a no-op.
func (p *Pacer) Disarm() {
	p.mu.Lock()
	if p.state == Idle {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	p.setStateLocked(Idle)
	p.mu.Unlock()

	p.logger.Info("pacer disarmed")
}

// SetInterval changes the tick cadence. On an armed pacer the timer is
// rebuilt, so the next tick lands a full new interval from now.
func (p *Pacer) SetInterval(d time.Duration) {
	p.mu.Lock()
	p.interval = d
	rebuild := p.rebuild
	running := p.state != Idle
	p.mu.Unlock()

	if running {
		select {
		case rebuild <- d:
		default:
			// A pending rebuild is superseded; drain and replace.
			select {
			case <-rebuild:
			default:
			}
			rebuild <- d
		}
	}
}

// TryAcquire claims the in-flight slot. It returns false when a query is
// already in flight; the caller must then skip, not wait.
func (p *Pacer) TryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight {
		return false
	}
	p.inFlight = true
	if p.state == Armed {
		p.setStateLocked(Capturing)
	}
	return true
}

// Release frees the in-flight slot. Releasing an unheld slot is a no-op, so
// failure paths can call it unconditionally.
func (p *Pacer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inFlight {
		return
	}
	p.inFlight = false
	if p.state == Capturing {
		p.setStateLocked(Armed)
	}
}

// InFlight reports whether the in-flight slot is held.
func (p *Pacer) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

func (p *Pacer) setStateLocked(s State) {
	if p.state == s {
		return
	}
	p.state = s
	if p.onChange != nil {
		fn, state := p.onChange, s
		go fn(state)
	}
}

func (p *Pacer) run(stopCh chan struct{}, rebuild chan time.Duration, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case d := <-rebuild:
			ticker.Stop()
			ticker = time.NewTicker(d)
			p.logger.Info("pacer interval changed", zap.Duration("interval", d))
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pacer) tick() {
	if !p.TryAcquire() {
		metrics.TicksSkipped.Inc()
		p.logger.Debug("tick skipped, query in flight")
		return
	}
	p.onTick()
}
