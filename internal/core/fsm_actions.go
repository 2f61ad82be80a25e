package core

import (
	"context"

	"github.com/librescoot/librefsm"

	"handheld-hal/internal/fsm"
	"handheld-hal/internal/types"
)

// stateMachine is the part of the librefsm machine the System drives
// after start.
type stateMachine interface {
	SendSync(ev librefsm.Event) error
	CurrentState() librefsm.StateID
}

func stateIDToInitState(id librefsm.StateID) types.InitState {
	switch id {
	case fsm.StateUninit:
		return types.StateUninit
	case fsm.StateHardwareReady:
		return types.StateHardwareReady
	case fsm.StateSdkReady:
		return types.StateSdkReady
	case fsm.StateReady:
		return types.StateReady
	case fsm.StatePoweringDown:
		return types.StatePoweringDown
	default:
		return types.InitState(string(id))
	}
}

// initFSM initializes and starts the librefsm machine
func (s *System) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(s)
	machine, err := def.Build()
	if err != nil {
		return err
	}

	machine.OnStateChange(func(from, to librefsm.StateID) {
		newState := stateIDToInitState(to)
		oldState := stateIDToInitState(from)

		s.mu.Lock()
		s.state = newState
		s.mu.Unlock()

		s.logger.Infof("State transition: %s -> %s", oldState, newState)

		if s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishState(newState); err != nil {
				s.logger.Errorf("Failed to publish state: %v", err)
			}
		}
	})

	if err := machine.Start(ctx); err != nil {
		return err
	}
	s.machine = machine

	s.logger.Infof("librefsm state machine started")
	return nil
}

// sendEvent sends an event to the FSM
func (s *System) sendEvent(event librefsm.EventID) error {
	if s.machine == nil {
		return ErrNotReady
	}
	return s.machine.SendSync(librefsm.Event{ID: event})
}

// === State Entry Actions ===

// EnterReady runs the init common to both orders of hardware and SDK
// initialization.
func (s *System) EnterReady(c *librefsm.Context) error {
	s.logger.Infof("HAL ready (from %s)", c.FromState)
	s.applyBrightness(s.Brightness())
	return nil
}

func (s *System) EnterPoweringDown(c *librefsm.Context) error {
	s.logger.Infof("Powering down (from %s)", c.FromState)
	s.MaybeFlush()
	return nil
}
