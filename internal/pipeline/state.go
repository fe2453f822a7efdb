package pipeline

// State is a step of the submission state machine.
type State string

const (
	StateIdle                    State = "idle"
	StateUploadingDocument       State = "uploading_document"
	StateConvertingPreview       State = "converting_preview"
	StateUploadingPreview        State = "uploading_preview"
	StatePersistingPendingRecord State = "persisting_pending_record"
	StateRequestingFeedback      State = "requesting_feedback"
	StatePersistingFeedback      State = "persisting_feedback"
	StateComplete                State = "complete"
	StateFailed                  State = "failed"
)

var narration = map[State]string{
	StateUploadingDocument:       "Uploading resume file...",
	StateConvertingPreview:       "Converting PDF to image...",
	StateUploadingPreview:        "Uploading preview image...",
	StatePersistingPendingRecord: "Preparing AI analysis...",
	StateRequestingFeedback:      "Analyzing with AI...",
	StatePersistingFeedback:      "Saving analysis...",
	StateComplete:                "Analysis complete!",
}

// Narration returns the human-readable progress line for a state.
func Narration(s State) string {
	return narration[s]
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Progress receives every transition with its narration. It is observational only.
type Progress func(state State, status string)

// Step is one recorded transition, used by callers that return the narration to clients.
type Step struct {
	State  State  `json:"state"`
	Status string `json:"status"`
}

// Recorder collects transitions in order.
type Recorder struct {
	Steps []Step
}

// Observe implements Progress.
func (r *Recorder) Observe(state State, status string) {
	r.Steps = append(r.Steps, Step{State: state, Status: status})
}
