package session

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/metrics"
)

// Grant states and events.
const (
	StateReleased = "released"
	StateHeld     = "held"

	EventAcquire = "acquire"
	EventRelease = "release"
	EventDeny    = "deny"
)

// Arbiter tracks this client's live-control grant. The grant is optimistic:
// it flips locally on request and is only taken back by an explicit denial
// from the backend.
type Arbiter struct {
	fsm    *fsm.FSM
	logger log.Logger
}

// NewArbiter returns an Arbiter in the released state.
func NewArbiter(logger log.Logger) *Arbiter {
	if logger == nil {
		logger = log.Std()
	}
	return &Arbiter{
		logger: logger.WithName("arbiter"),
		fsm: fsm.NewFSM(
			StateReleased,
			fsm.Events{
				{Name: EventAcquire, Src: []string{StateReleased}, Dst: StateHeld},
				{Name: EventRelease, Src: []string{StateHeld}, Dst: StateReleased},
				{Name: EventDeny, Src: []string{StateHeld}, Dst: StateReleased},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					metrics.ControlHeld.Set(metrics.Bool(e.Dst == StateHeld))
				},
			},
		),
	}
}

// Held reports whether publishes may reach the backend.
func (a *Arbiter) Held() bool {
	return a.fsm.Is(StateHeld)
}

// Toggle flips the grant and returns the new value.
func (a *Arbiter) Toggle() bool {
	event := EventAcquire
	if a.Held() {
		event = EventRelease
	}
	a.fire(event)
	return a.Held()
}

// Deny drops a held grant. It reports whether the grant was held.
func (a *Arbiter) Deny() bool {
	if !a.Held() {
		return false
	}
	a.fire(EventDeny)
	return true
}

// fire runs event and logs a rejected transition.
func (a *Arbiter) fire(event string) {
	if err := a.fsm.Event(context.Background(), event); err != nil {
		a.logger.Error(err, "grant transition failed", "event", event, "state", a.fsm.Current())
	}
}
