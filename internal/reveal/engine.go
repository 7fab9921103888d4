// Package reveal discloses a complete assistant reply progressively, a fixed
// number of characters per tick, as if it were being typed.
package reveal

import (
	"sync"
	"time"

	"github.com/comigor/medchat-go/internal/logger"
)

// Update carries the revealed prefix of one message.
type Update struct {
	MessageID string
	Text      string
	Done      bool
}

// Ticker is the scheduled-task handle driving a job. It is stopped when the
// job completes or is canceled.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Engine runs at most one reveal job at a time.
//
// Callbacks (the update handler and a job's completion callback) run outside
// the engine lock, so they may call Start or Cancel.
type Engine struct {
	chunk     int
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onUpdate  func(Update)

	mu     sync.Mutex
	active *Job
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithTickerFactory replaces time.NewTicker, mainly for tests.
func WithTickerFactory(f func(time.Duration) Ticker) Option {
	return func(e *Engine) { e.newTicker = f }
}

// WithUpdateHandler registers fn to receive every revealed prefix.
func WithUpdateHandler(fn func(Update)) Option {
	return func(e *Engine) { e.onUpdate = fn }
}

// New creates an engine revealing chunkSize characters every interval.
func New(chunkSize int, interval time.Duration, opts ...Option) *Engine {
	if chunkSize < 1 {
		chunkSize = 1
	}
	e := &Engine{
		chunk:     chunkSize,
		interval:  interval,
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start cancels the active job, if any, and starts revealing target into
// messageID from the beginning. onComplete is called exactly once with the
// full text if the job reaches the end without being canceled. An empty
// target completes before Start returns.
func (e *Engine) Start(target, messageID string, onComplete func(string)) *Job {
	job := newJob(target, messageID, e.chunk, onComplete)

	e.mu.Lock()
	if e.cancelLocked() {
		logger.L.Debug("reveal replaced", "message_id", messageID)
	}
	job.fire(triggerStart)

	if len(job.target) == 0 {
		job.fire(triggerFinish)
		e.mu.Unlock()
		e.emit(Update{MessageID: messageID, Done: true})
		e.complete(job)
		return job
	}

	e.active = job
	ticker := e.newTicker(e.interval)
	e.wg.Add(1)
	go e.run(job, ticker)
	e.mu.Unlock()

	return job
}

// Cancel stops the active job. Its partial text stays where it is and its
// completion callback is never called. It reports whether a job was running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelLocked()
}

func (e *Engine) cancelLocked() bool {
	j := e.active
	if j == nil {
		return false
	}
	j.fire(triggerCancel)
	close(j.stop)
	e.active = nil
	return true
}

// Active reports whether a job is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// ActiveMessageID returns the message being revealed, or "".
func (e *Engine) ActiveMessageID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ""
	}
	return e.active.messageID
}

// Close cancels the active job and waits for its goroutine to exit.
func (e *Engine) Close() {
	e.Cancel()
	e.wg.Wait()
}

func (e *Engine) run(j *Job, t Ticker) {
	defer e.wg.Done()
	defer t.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-t.C():
			upd, ok := e.step(j)
			if !ok {
				return
			}
			e.emit(upd)
			if upd.Done {
				e.complete(j)
				return
			}
		}
	}
}

// step advances j under the lock. It reports false when j is no longer the
// active job.
func (e *Engine) step(j *Job) (Update, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != j {
		return Update{}, false
	}
	text, done := j.advance()
	if done {
		j.fire(triggerFinish)
		e.active = nil
	}
	return Update{MessageID: j.messageID, Text: text, Done: done}, true
}

func (e *Engine) emit(u Update) {
	if e.onUpdate != nil {
		e.onUpdate(u)
	}
}

func (e *Engine) complete(j *Job) {
	if j.onComplete != nil {
		j.onComplete(j.full())
	}
}
