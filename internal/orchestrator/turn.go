package orchestrator

import (
	"github.com/qmuntal/stateless"
)

// FSM States
type FSMState stateless.State

var (
	StateIdle      FSMState = "Idle"
	StateSending   FSMState = "Sending"   // chat call in flight
	StateRevealing FSMState = "Revealing" // reply is being revealed
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerSubmit    FSMTrigger = "Submit"
	TriggerReplied   FSMTrigger = "Replied"
	TriggerFailed    FSMTrigger = "Failed"
	TriggerDiscarded FSMTrigger = "Discarded" // reply arrived after navigation
	TriggerFinished  FSMTrigger = "Finished"
	TriggerAbandoned FSMTrigger = "Abandoned" // navigation canceled the reveal
)

// newTurnMachine builds the per-surface turn state machine. Only Idle accepts
// a submission, which is how a second turn is rejected while busy. A running
// chat call is never abandoned: its reply is reconciled and then discarded.
func newTurnMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateSending).
		Ignore(TriggerAbandoned).
		Ignore(TriggerFinished)

	fsm.Configure(StateSending).
		Permit(TriggerReplied, StateRevealing).
		Permit(TriggerFailed, StateIdle).
		Permit(TriggerDiscarded, StateIdle).
		Ignore(TriggerAbandoned)

	fsm.Configure(StateRevealing).
		Permit(TriggerFinished, StateIdle).
		Permit(TriggerAbandoned, StateIdle)

	return fsm
}
