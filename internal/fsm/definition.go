package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the lifecycle FSM definition. Hardware and SDK
// initialization may complete in either order; power-down is accepted
// from every state except itself.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateUninit).
		State(StateHardwareReady).
		State(StateSdkReady).
		State(StateReady,
			librefsm.WithOnEnter(actions.EnterReady),
		).
		State(StatePoweringDown,
			librefsm.WithOnEnter(actions.EnterPoweringDown),
		).

		// === Transitions ===

		Transition(StateUninit, EvHardwareInitDone, StateHardwareReady).
		Transition(StateUninit, EvSdkInitDone, StateSdkReady).
		Transition(StateHardwareReady, EvSdkInitDone, StateReady).
		Transition(StateSdkReady, EvHardwareInitDone, StateReady).

		Transition(StateUninit, EvPowerDown, StatePoweringDown).
		Transition(StateHardwareReady, EvPowerDown, StatePoweringDown).
		Transition(StateSdkReady, EvPowerDown, StatePoweringDown).
		Transition(StateReady, EvPowerDown, StatePoweringDown).
		Initial(StateUninit)
}
