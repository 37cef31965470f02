package download

// State is what a client renders: Idle, or Downloading with a percentage.
type State interface {
	Kind() string
	isState()
}

// IdleState means no download is running.
type IdleState struct{}

// DownloadingState carries the progress of the running download.
// ShowToast is raised only on the state that crossed the halfway mark.
type DownloadingState struct {
	Percent   int  `json:"percent"`
	ShowToast bool `json:"show_toast"`
}

func (IdleState) Kind() string        { return "idle" }
func (DownloadingState) Kind() string { return "downloading" }
func (IdleState) isState()            {}
func (DownloadingState) isState()     {}

// Event is user input.
type Event interface {
	Kind() string
	isEvent()
}

// ClickEvent is a press of the download button. State is the state the
// client was showing when the button was pressed.
type ClickEvent struct {
	State State
}

func (ClickEvent) Kind() string { return "click" }
func (ClickEvent) isEvent()     {}

// Action is the intent derived from an Event.
type Action int

const (
	ActionStart Action = iota
	ActionCancel
)

func (a Action) Kind() string {
	if a == ActionCancel {
		return "cancel"
	}
	return "start"
}

// Result is an outcome folded into State.
type Result interface {
	Kind() string
	isResult()
}

// IdleResult returns the feature to Idle.
type IdleResult struct{}

// DownloadingResult reports one progress tick.
type DownloadingResult struct {
	Percent   int  `json:"percent"`
	ShowToast bool `json:"show_toast"`
}

// CompletedResult reports that a download reached 100%.
type CompletedResult struct{}

func (IdleResult) Kind() string        { return "idle" }
func (DownloadingResult) Kind() string { return "downloading" }
func (CompletedResult) Kind() string   { return "completed" }
func (IdleResult) isResult()           {}
func (DownloadingResult) isResult()    {}
func (CompletedResult) isResult()      {}

// Effect is a one-shot notification.
type Effect interface {
	Kind() string
	isEffect()
}

// CompletedEffect asks the client to show the completion dialog.
type CompletedEffect struct{}

// HalfwayEffect asks the client to show the halfway toast.
type HalfwayEffect struct{}

func (CompletedEffect) Kind() string { return "completed" }
func (HalfwayEffect) Kind() string   { return "halfway" }
func (CompletedEffect) isEffect()    {}
func (HalfwayEffect) isEffect()      {}
