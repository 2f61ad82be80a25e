package fsm

import "github.com/librescoot/librefsm"

// Lifecycle states
const (
	StateUninit        librefsm.StateID = "uninit"
	StateHardwareReady librefsm.StateID = "hardware-ready"
	StateSdkReady      librefsm.StateID = "sdk-ready"
	StateReady         librefsm.StateID = "ready"
	StatePoweringDown  librefsm.StateID = "powering-down"
)

// Lifecycle events
const (
	EvHardwareInitDone librefsm.EventID = "hardware-init-done"
	EvSdkInitDone      librefsm.EventID = "sdk-init-done"
	EvPowerDown        librefsm.EventID = "power-down"
)
