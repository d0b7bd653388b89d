package bench

// Event is a notification from a run. Events are delivered in order from the
// run goroutine, except RunStatus which comes from the elapsed reporter.
type Event interface{ event() }

// StateChanged reports a control state transition.
type StateChanged struct{ State State }

// StepStarted is sent before a step runs.
type StepStarted struct {
	Slot int
	Step string
	Text string
}

// StepText replaces a slot's step text, e.g. while paused.
type StepText struct {
	Slot int
	Text string
}

// StepFinished is sent after a step is recorded.
type StepFinished struct {
	Slot     int
	Step     string
	Passed   bool
	Finished int
	Total    int
}

// SlotFinished is sent when a slot's main pass ends.
type SlotFinished struct {
	Slot    int
	Passing bool
	Reason  string
}

// Alert asks the operator to look at a slot.
type Alert struct {
	Slot    int
	Message string
}

// RunStatus carries the elapsed-time line.
type RunStatus struct{ Text string }

// RunFinished is the last event of a run.
type RunFinished struct {
	State State
	Slots [SlotCount]Slot
	Err   error
}

func (StateChanged) event() {}
func (StepStarted) event()  {}
func (StepText) event()     {}
func (StepFinished) event() {}
func (SlotFinished) event() {}
func (Alert) event()        {}
func (RunStatus) event()    {}
func (RunFinished) event()  {}

// Sink receives run events.
type Sink interface {
	Send(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

func (f SinkFunc) Send(e Event) { f(e) }

type discard struct{}

func (discard) Send(Event) {}
