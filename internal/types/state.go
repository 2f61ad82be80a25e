package types

// InitState is the lifecycle of the HAL. Hardware and SDK initialization
// may complete in either order; Ready is reached once both have.
type InitState string

const (
	StateUninit        InitState = "uninit"
	StateHardwareReady InitState = "hardware-ready"
	StateSdkReady      InitState = "sdk-ready"
	StateReady         InitState = "ready"
	StatePoweringDown  InitState = "powering-down"
)

type ChargeStatus int

const (
	ChargeNoCharger ChargeStatus = iota
	ChargeCharging
	ChargeFull
)
