package dispatch

import "time"

// Event describes a job transition delivered to observers. Job is a snapshot.
type Event struct {
	Queue string
	Job   Job
	Err   error
	At    time.Time
}

// Observer receives terminal and stalled job events. Callbacks run on the
// worker goroutine and must not block for long.
type Observer interface {
	OnCompleted(Event)
	OnFailed(Event)
	OnStalled(Event)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Completed func(Event)
	Failed    func(Event)
	Stalled   func(Event)
}

func (o ObserverFuncs) OnCompleted(e Event) {
	if o.Completed != nil {
		o.Completed(e)
	}
}

func (o ObserverFuncs) OnFailed(e Event) {
	if o.Failed != nil {
		o.Failed(e)
	}
}

func (o ObserverFuncs) OnStalled(e Event) {
	if o.Stalled != nil {
		o.Stalled(e)
	}
}
