package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpenState is returned when the breaker rejects a call without executing
// the wrapped operation.
var ErrOpenState = errors.New("breaker: call not permitted")

// ErrTooManyCalls is returned when the half-open trial budget is exhausted.
var ErrTooManyCalls = errors.New("breaker: too many calls in half-open state")

// State enumerates the breaker modes.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Transition describes one observed state change.
type Transition struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Settings configures a Breaker. One breaker instance guards one dependency;
// instances are passed explicitly, never shared through globals.
type Settings struct {
	// Name identifies the guarded dependency in transition events.
	Name string
	// WindowSize bounds the sliding window of recorded outcomes.
	WindowSize int
	// MinCalls is the number of recorded outcomes required before the
	// failure rate is evaluated. Below it the rate is undefined and the
	// breaker stays closed.
	MinCalls int
	// FailureThreshold is the failure rate in [0,1] at or above which the
	// breaker opens.
	FailureThreshold float64
	// OpenWait is how long the breaker stays open before admitting a trial
	// call.
	OpenWait time.Duration
	// HalfOpenMaxCalls bounds concurrent trial calls while half-open.
	// Defaults to 1.
	HalfOpenMaxCalls int
	// OnStateChange, when set, is invoked after every transition, outside
	// the breaker lock and in transition order.
	OnStateChange func(t Transition)
	// Clock overrides time.Now, used by tests.
	Clock func() time.Time
}

// Breaker is a sliding-window circuit breaker. All state is guarded by a
// single mutex; it is safe for concurrent use from any number of goroutines.
type Breaker struct {
	name             string
	windowSize       int
	minCalls         int
	failureThreshold float64
	openWait         time.Duration
	halfOpenMax      int
	onStateChange    func(t Transition)
	now              func() time.Time

	mu           sync.Mutex
	state        State
	window       []bool // true = failure
	head         int
	count        int
	failures     int
	openedAt     time.Time
	halfOpenBusy int
}

// New constructs a Breaker from the supplied settings, applying defaults for
// zero values.
func New(st Settings) *Breaker {
	if st.WindowSize < 1 {
		st.WindowSize = 20
	}
	if st.MinCalls < 1 {
		st.MinCalls = st.WindowSize / 2
		if st.MinCalls < 1 {
			st.MinCalls = 1
		}
	}
	if st.FailureThreshold <= 0 || st.FailureThreshold > 1 {
		st.FailureThreshold = 0.5
	}
	if st.OpenWait <= 0 {
		st.OpenWait = 30 * time.Second
	}
	if st.HalfOpenMaxCalls < 1 {
		st.HalfOpenMaxCalls = 1
	}
	if st.Clock == nil {
		st.Clock = time.Now
	}

	return &Breaker{
		name:             st.Name,
		windowSize:       st.WindowSize,
		minCalls:         st.MinCalls,
		failureThreshold: st.FailureThreshold,
		openWait:         st.OpenWait,
		halfOpenMax:      st.HalfOpenMaxCalls,
		onStateChange:    st.OnStateChange,
		now:              st.Clock,
		window:           make([]bool, st.WindowSize),
	}
}

// Name returns the breaker's dependency name.
func (b *Breaker) Name() string { return b.name }

// State reports the current mode. Reading the state does not promote
// open→half-open; promotion happens when the next call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op when the breaker permits it and records the outcome. Any
// error from op, timeouts included, counts as a failure. When the breaker is
// open, ErrOpenState is returned and op is never invoked.
func (b *Breaker) Execute(op func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := op()
	b.Record(err == nil)
	return err
}

// Allow decides whether a call may proceed, performing the open→half-open
// promotion and reserving a trial slot when half-open. Callers using Allow
// directly must pair every nil return with exactly one Record call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var fired []Transition

	var err error
	switch b.state {
	case StateClosed:
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openWait {
			err = ErrOpenState
			break
		}
		fired = b.transitionLocked(StateHalfOpen, fired)
		b.halfOpenBusy = 1
	case StateHalfOpen:
		if b.halfOpenBusy >= b.halfOpenMax {
			err = ErrTooManyCalls
			break
		}
		b.halfOpenBusy++
	default:
		err = ErrOpenState
	}

	b.mu.Unlock()
	b.fire(fired)
	return err
}

// Record feeds one outcome into the window and drives transitions. A success
// is recorded as success=true.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	var fired []Transition

	switch b.state {
	case StateHalfOpen:
		if b.halfOpenBusy > 0 {
			b.halfOpenBusy--
		}
		if success {
			b.resetWindowLocked()
			fired = b.transitionLocked(StateClosed, fired)
		} else {
			b.openedAt = b.now()
			fired = b.transitionLocked(StateOpen, fired)
		}
	case StateClosed:
		b.pushLocked(!success)
		if b.count >= b.minCalls && b.failureRateLocked() >= b.failureThreshold {
			b.openedAt = b.now()
			fired = b.transitionLocked(StateOpen, fired)
		}
	case StateOpen:
		// A call admitted before the flip completed; its outcome no longer
		// changes the decision.
	}

	b.mu.Unlock()
	b.fire(fired)
}

// ForceOpen trips the breaker regardless of the window contents and restarts
// the open-wait clock.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	var fired []Transition
	b.openedAt = b.now()
	b.halfOpenBusy = 0
	fired = b.transitionLocked(StateOpen, fired)
	b.mu.Unlock()
	b.fire(fired)
}

// Reset clears the window and returns the breaker to closed. Administrative
// operation; not part of the normal state machine.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var fired []Transition
	b.resetWindowLocked()
	b.halfOpenBusy = 0
	fired = b.transitionLocked(StateClosed, fired)
	b.mu.Unlock()
	b.fire(fired)
}

// Counts reports the number of recorded outcomes and failures currently in
// the window.
func (b *Breaker) Counts() (calls, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count, b.failures
}

// FailureRate returns the current failure rate and whether it is defined.
// The rate is undefined until MinCalls outcomes have been recorded.
func (b *Breaker) FailureRate() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count < b.minCalls {
		return 0, false
	}
	return b.failureRateLocked(), true
}

func (b *Breaker) pushLocked(failure bool) {
	if b.count == b.windowSize {
		if b.window[b.head] {
			b.failures--
		}
	} else {
		b.count++
	}
	b.window[b.head] = failure
	if failure {
		b.failures++
	}
	b.head = (b.head + 1) % b.windowSize
}

func (b *Breaker) failureRateLocked() float64 {
	if b.count == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.count)
}

func (b *Breaker) resetWindowLocked() {
	for i := range b.window {
		b.window[i] = false
	}
	b.head = 0
	b.count = 0
	b.failures = 0
}

// transitionLocked moves to the target state and queues the transition event
// for delivery once the lock is released.
func (b *Breaker) transitionLocked(to State, fired []Transition) []Transition {
	from := b.state
	if from == to {
		return fired
	}
	b.state = to
	return append(fired, Transition{Name: b.name, From: from, To: to, At: b.now()})
}

func (b *Breaker) fire(fired []Transition) {
	if b.onStateChange == nil {
		return
	}
	for _, t := range fired {
		b.onStateChange(t)
	}
}

// Guard wraps an operation returning a value. It exists because Execute's
// closure form loses the result type; Guard keeps call sites tidy.
func Guard[T any](b *Breaker, op func() (T, error)) (T, error) {
	var out T
	err := b.Execute(func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsRejection reports whether err is a breaker rejection rather than a
// failure of the wrapped operation.
func IsRejection(err error) bool {
	return errors.Is(err, ErrOpenState) || errors.Is(err, ErrTooManyCalls)
}
