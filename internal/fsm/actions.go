package fsm

import "github.com/librescoot/librefsm"

// Actions defines the callbacks of the lifecycle machine.
// core.System implements this interface.
type Actions interface {
	// Runs once both halves of initialization have completed, in
	// whichever order they arrived.
	EnterReady(c *librefsm.Context) error
	EnterPoweringDown(c *librefsm.Context) error
}
