package harness

import "github.com/roach88/morgisync/internal/engine"

// Trace entry types.
const (
	TypeStep  = "step"  // a flow step issued by the scenario
	TypePush  = "push"  // a live message delivered to the engine
	TypeEvent = "event" // an event applied by the engine
)

// TraceEvent is one entry of a scenario trace.
//
// Step entries carry the operation, its target and outcome. Push entries
// carry the message type in Kind. Event entries carry the applied event
// kind, its seq, and the view after it was applied.
type TraceEvent struct {
	Type    string   `json:"type"`
	Op      string   `json:"op,omitempty"`
	Target  string   `json:"target,omitempty"`
	Outcome string   `json:"outcome,omitempty"`
	Seq     int64    `json:"seq,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Active  string   `json:"active,omitempty"`
	Visible []string `json:"visible,omitempty"`
	Trash   int      `json:"trash,omitempty"`
}

// name is what trace assertions match against: the op of a step, the kind
// of anything else.
func (e TraceEvent) name() string {
	if e.Type == TypeStep {
		return e.Op
	}
	return e.Kind
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause, principle and assertion held.
	Pass bool `json:"pass"`

	// Trace holds steps, pushes and applied events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State contains the final tables used by final_state assertions.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step entry and returns its index, so the outcome can
// be filled in once the step finishes.
func (r *Result) AddStep(op, target string) int {
	r.Trace = append(r.Trace, TraceEvent{Type: TypeStep, Op: op, Target: target})
	return len(r.Trace) - 1
}

// AddPush appends a delivered live message.
func (r *Result) AddPush(msgType string) {
	r.Trace = append(r.Trace, TraceEvent{Type: TypePush, Kind: msgType})
}

// AddEvent appends an applied event from the view observers receive.
func (r *Result) AddEvent(v engine.View) {
	ids := make([]string, len(v.Visible))
	for i, img := range v.Visible {
		ids[i] = img.ID
	}
	r.Trace = append(r.Trace, TraceEvent{
		Type:    TypeEvent,
		Seq:     v.Seq,
		Kind:    v.Event,
		Active:  v.Active,
		Visible: ids,
		Trash:   v.TrashCount,
	})
}
