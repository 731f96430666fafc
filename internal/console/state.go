// Package console implements the two prediction UIs as view-state controllers.
//
// A controller owns a State, mutates it through the same transitions a page
// would (hide panels, disable the trigger, render text) and exposes it through
// ComputeView so pages and tests read a plain value instead of a live DOM.
package console

// Panel names a region that is shown or hidden.
type Panel string

const (
	PanelResult Panel = "result"
	PanelError  Panel = "error"
	PanelStatus Panel = "model-status"
)

// User-facing messages.
const (
	MsgNoFile           = "Please select a file to upload."
	MsgNoRecord         = "Please select a record ID."
	MsgNoRecords        = "No records found in the dataset."
	MsgHealthFailed     = "Could not check model status."
	MsgModelNotLoaded   = "Model is NOT loaded."
	MsgModelLoadedFmt   = "Model loaded: %s"
	MsgLoadRecordsFmt   = "Could not load record IDs: %s"
	MsgModelUnavailable = "The prediction model is currently unavailable. Please contact the administrator or try again later."

	// PlaceholderLabel is the disabled first entry of the record dropdown.
	PlaceholderLabel = "-- Select a record ID --"

	modelUnavailableMarker = "Model is not available"
)

// Option is one entry of the record dropdown.
type Option struct {
	Value    string
	Label    string
	Disabled bool
}

// State is the mutable view state of one page session.
type State struct {
	ResultVisible bool
	ErrorVisible  bool
	StatusVisible bool

	PredictionText string
	ErrorText      string
	StatusText     string

	PredictEnabled bool

	Options  []Option
	Selected string
}

// View is the read-only rendering of a State.
type View struct {
	// Panels lists visible panels in page order: result, error, status.
	Panels         []Panel
	Texts          map[Panel]string
	PredictEnabled bool
	Options        []Option
	Selected       string
}

// Visible reports whether p is shown.
func (v View) Visible(p Panel) bool {
	for _, x := range v.Panels {
		if x == p {
			return true
		}
	}
	return false
}

// Text returns the output text of p, visible or not.
func (v View) Text(p Panel) string {
	return v.Texts[p]
}

// ComputeView derives what a page shows from s. It has no side effects.
func ComputeView(s State) View {
	v := View{
		Texts: map[Panel]string{
			PanelResult: s.PredictionText,
			PanelError:  s.ErrorText,
			PanelStatus: s.StatusText,
		},
		PredictEnabled: s.PredictEnabled,
		Selected:       s.Selected,
	}
	if s.ResultVisible {
		v.Panels = append(v.Panels, PanelResult)
	}
	if s.ErrorVisible {
		v.Panels = append(v.Panels, PanelError)
	}
	if s.StatusVisible {
		v.Panels = append(v.Panels, PanelStatus)
	}
	if len(s.Options) > 0 {
		v.Options = make([]Option, len(s.Options))
		copy(v.Options, s.Options)
	}
	return v
}

// beginAttempt clears the previous outcome and locks the trigger.
func (s *State) beginAttempt() {
	s.ResultVisible = false
	s.ErrorVisible = false
	s.PredictionText = ""
	s.ErrorText = ""
	s.PredictEnabled = false
}

func (s *State) showResult(text string) {
	s.PredictionText = text
	s.ResultVisible = true
}

func (s *State) showError(msg string) {
	s.ErrorText = msg
	s.ErrorVisible = true
}

func (s *State) beginStatus() {
	s.StatusVisible = false
	s.StatusText = ""
}

func (s *State) showStatus(text string) {
	s.StatusText = text
	s.StatusVisible = true
}

// setRecords rebuilds the dropdown: placeholder first, then ids in order.
func (s *State) setRecords(ids []string) {
	s.Options = make([]Option, 0, len(ids)+1)
	s.Options = append(s.Options, Option{Value: "", Label: PlaceholderLabel, Disabled: true})
	for _, id := range ids {
		s.Options = append(s.Options, Option{Value: id, Label: id})
	}
	s.Selected = ""
	if len(ids) > 0 {
		s.Selected = ids[0]
	}
}
