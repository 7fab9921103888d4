package reveal

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State is the lifecycle state of a reveal job.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateCompleted State = "Completed" // Terminal: completion callback fired
	StateCanceled  State = "Canceled"  // Terminal: canceled or replaced, no callback
)

type trigger string

const (
	triggerStart  trigger = "Start"
	triggerFinish trigger = "Finish"
	triggerCancel trigger = "Cancel"
)

// Job reveals one target string into one message. Its fields are guarded by
// the owning Engine's mutex.
type Job struct {
	messageID  string
	target     []rune
	cursor     int
	chunk      int
	onComplete func(string)

	fsm  *stateless.StateMachine
	stop chan struct{}
}

func newJob(target, messageID string, chunk int, onComplete func(string)) *Job {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(triggerStart, StateRunning).
		Permit(triggerCancel, StateCanceled)

	fsm.Configure(StateRunning).
		Permit(triggerFinish, StateCompleted).
		Permit(triggerCancel, StateCanceled)

	// Completed and Canceled permit nothing: a job never resumes.

	return &Job{
		messageID:  messageID,
		target:     []rune(target),
		chunk:      chunk,
		onComplete: onComplete,
		fsm:        fsm,
		stop:       make(chan struct{}),
	}
}

// MessageID returns the message this job writes into.
func (j *Job) MessageID() string { return j.messageID }

// State returns the current lifecycle state.
func (j *Job) State() State {
	st, err := j.fsm.State(context.Background())
	if err != nil {
		return StateIdle
	}
	return st.(State)
}

func (j *Job) fire(t trigger) bool {
	return j.fsm.Fire(t) == nil
}

// advance moves the cursor one chunk forward and returns the revealed prefix
// and whether the end was reached.
func (j *Job) advance() (string, bool) {
	j.cursor += j.chunk
	if j.cursor > len(j.target) {
		j.cursor = len(j.target)
	}
	return string(j.target[:j.cursor]), j.cursor == len(j.target)
}

func (j *Job) full() string { return string(j.target) }
