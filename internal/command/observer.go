package command

import "time"

// Event describes one finished command.
type Event struct {
	Serial    string
	DeviceID  string
	Operation string
	Outcome   Outcome
	Latency   time.Duration
	Err       error
}

// Observer is notified after every command. Implementations must not
// block; they run on the caller's goroutine.
type Observer interface {
	CommandCompleted(ev Event)
	StatusReceived(report *StatusReport)
}

type noopObserver struct{}

func (noopObserver) CommandCompleted(Event)         {}
func (noopObserver) StatusReceived(*StatusReport) {}

// Observers fans out to several observers in order.
type Observers []Observer

// CommandCompleted implements Observer.
func (os Observers) CommandCompleted(ev Event) {
	for _, o := range os {
		o.CommandCompleted(ev)
	}
}

// StatusReceived implements Observer.
func (os Observers) StatusReceived(report *StatusReport) {
	for _, o := range os {
		o.StatusReceived(report)
	}
}
