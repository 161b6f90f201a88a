// pkg/engine/job.go
package engine

import (
	"context"
	"sync"

	"github.com/arc-language/benpak/pkg/core"
)

// progressStep throttles download progress events
const progressStep = 0.01

// Job is a handle on one in-flight install. A caller that asked for Events
// must drain them until the terminal event, after which the channel is
// closed. Jobs nobody subscribed to drop their events once Wait returns.
type Job struct {
	desc   *core.Descriptor
	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	notify chan struct{}
	done   chan struct{}

	detach     chan struct{}
	detachOnce sync.Once

	mu         sync.Mutex
	queue      []Event
	subscribed bool
	state      State
	progress   float64
	result     *Result
	err        error
}

func newJob(ctx context.Context, desc *core.Descriptor) *Job {
	jctx, cancel := context.WithCancel(ctx)
	j := &Job{
		desc:   desc,
		ctx:    jctx,
		cancel: cancel,
		events: make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		detach: make(chan struct{}),
		state:  StatePending,
	}
	go j.pump()
	return j
}

// PackageID returns the id of the package being installed
func (j *Job) PackageID() string {
	return j.desc.ID
}

// Descriptor returns the descriptor the job was submitted with
func (j *Job) Descriptor() *core.Descriptor {
	return j.desc
}

// Events delivers Pending, Downloading progress, Extracting, Finalizing and
// exactly one terminal event, in that order
func (j *Job) Events() <-chan Event {
	j.mu.Lock()
	j.subscribed = true
	j.mu.Unlock()
	return j.events
}

// Discard stops event delivery. Queued and future events are dropped and the
// Events channel is closed.
func (j *Job) Discard() {
	j.detachOnce.Do(func() { close(j.detach) })
}

// release discards the stream of a finished job nobody subscribed to
func (j *Job) release() {
	j.mu.Lock()
	idle := !j.subscribed
	j.mu.Unlock()
	if idle {
		j.Discard()
	}
}

// Cancel requests cancellation; it takes effect at the next network read or
// file chunk boundary
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed once the job has reached a terminal state
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes. If Events was never called the event
// stream is discarded.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	j.release()
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// State returns the current state
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) transition(s State) {
	j.mu.Lock()
	j.state = s
	ev := Event{PackageID: j.desc.ID, State: s, Progress: j.progress}
	j.enqueue(ev)
	j.mu.Unlock()
}

// reportDownload is the fetch progress callback
func (j *Job) reportDownload(frac float64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateDownloading || frac <= j.progress {
		return
	}
	if frac < 1 && frac-j.progress < progressStep {
		return
	}
	j.progress = frac
	j.enqueue(Event{PackageID: j.desc.ID, State: StateDownloading, Progress: frac})
}

// complete records the outcome and queues the terminal event
func (j *Job) complete(ev Event, res *Result, err error) {
	j.mu.Lock()
	j.state = ev.State
	if ev.State == StateSucceeded {
		j.progress = 1
	}
	ev.Progress = j.progress
	j.result = res
	j.err = err
	j.enqueue(ev)
	j.mu.Unlock()

	close(j.done)
	j.cancel()
}

// enqueue must be called with mu held
func (j *Job) enqueue(ev Event) {
	j.queue = append(j.queue, ev)
	select {
	case j.notify <- struct{}{}:
	default:
	}
}

// pump moves queued events to the unbuffered channel in order, closing it
// after the terminal event
func (j *Job) pump() {
	defer func() {
		j.mu.Lock()
		j.queue = nil
		j.mu.Unlock()
		close(j.events)
	}()
	for {
		j.mu.Lock()
		for len(j.queue) == 0 {
			j.mu.Unlock()
			select {
			case <-j.notify:
			case <-j.detach:
				return
			}
			j.mu.Lock()
		}
		ev := j.queue[0]
		j.queue = j.queue[1:]
		j.mu.Unlock()

		select {
		case j.events <- ev:
		case <-j.detach:
			return
		}
		if ev.State.Terminal() {
			return
		}
	}
}
