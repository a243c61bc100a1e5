package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/morgisync/internal/model"
)

// Scenario defines a sync scenario: a seeded store, a flow of user
// operations and live messages, and assertions on the resulting trace and
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the journal session id. Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Live delivers every message the store pushes back to the engine after
	// each step, as the live channel would.
	Live bool `yaml:"live,omitempty"`

	// Setup seeds the store before the initial load.
	Setup Setup `yaml:"setup"`

	// Flow contains the steps to execute in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, visible
	Assertions []Assertion `yaml:"assertions"`
}

// Setup is the store contents the scenario starts from.
type Setup struct {
	Categories []string    `yaml:"categories"`
	Images     []SeedImage `yaml:"images,omitempty"`

	// Active is the category shown when the scenario starts.
	Active string `yaml:"active,omitempty"`
}

// SeedImage is an image record in the seeded store, newest first.
type SeedImage struct {
	ID       string `yaml:"id"`
	Site     string `yaml:"site,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Category string `yaml:"category"`
	Width    int    `yaml:"width,omitempty"`
	Height   int    `yaml:"height,omitempty"`
	Favorite bool   `yaml:"favorite,omitempty"`
	Deleted  bool   `yaml:"deleted,omitempty"`
	Safe     bool   `yaml:"safe,omitempty"`
	SafePath string `yaml:"safe_path,omitempty"`
}

func (s SeedImage) image() model.Image {
	url := s.URL
	if url == "" {
		url = "https://example.com/" + s.ID + ".jpg"
	}
	return model.Image{
		ID:          s.ID,
		Site:        s.Site,
		OriginalURL: url,
		Category:    s.Category,
		Width:       s.Width,
		Height:      s.Height,
		IsFavorite:  s.Favorite,
		IsDeleted:   s.Deleted,
		IsSafe:      s.Safe,
		SafePath:    s.SafePath,
	}
}

// FlowStep is one operation in the flow. Which fields apply depends on Op.
type FlowStep struct {
	Op string `yaml:"op"`

	ID       string `yaml:"id,omitempty"`
	Category string `yaml:"category,omitempty"`
	Name     string `yaml:"name,omitempty"`
	NewName  string `yaml:"new_name,omitempty"`
	URL      string `yaml:"url,omitempty"`

	// Confirm answers a confirmation prompt. Defaults to yes.
	Confirm *bool `yaml:"confirm,omitempty"`

	// Resolve answers the delete-category prompt: delete_images,
	// move_images or cancel. MoveTo names the destination.
	Resolve string `yaml:"resolve,omitempty"`
	MoveTo  string `yaml:"move_to,omitempty"`

	// Message is delivered by a push step.
	Message *PushMessage `yaml:"message,omitempty"`

	// Down makes the store unreachable for the duration of the step.
	Down bool `yaml:"down,omitempty"`

	// Expect specifies the expected outcome. Without it, any outcome other
	// than an error passes.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// target names what a step acts on, for the trace.
func (s FlowStep) target() string {
	switch {
	case s.ID != "":
		return s.ID
	case s.Name != "":
		return s.Name
	case s.URL != "":
		return s.URL
	case s.Message != nil:
		return s.Message.Type
	default:
		return s.Category
	}
}

func (s FlowStep) confirmed() bool {
	return s.Confirm == nil || *s.Confirm
}

// PushMessage is a live message written in a scenario.
type PushMessage struct {
	Type    string `yaml:"type"`
	Payload any    `yaml:"payload,omitempty"`
	Text    string `yaml:"text,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is "ok", an error code such as PRECONDITION_REJECTED, or an
	// operation result such as declined, aborted, cancelled, unchanged,
	// saved, duplicate or skipped.
	Outcome string `yaml:"outcome"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a trace entry named Event exists, with Outcome
	//   when given
	// - "trace_order": the entries in Sequence appear in order
	// - "trace_count": the entry named Event appears exactly Count times
	// - "final_state": exactly one row of Table matches Where, and has the
	//   Expect values
	// - "visible": the images visible under Category are exactly IDs
	Type string `yaml:"type"`

	// Event is a step op, event kind or push message type.
	Event string `yaml:"event,omitempty"`

	// Outcome restricts trace_contains to steps with this outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Sequence is the expected order (used by trace_order).
	Sequence []string `yaml:"sequence,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the state table name (used by final_state). images, store,
	// categories and session are read from memory; any other name is
	// queried from the journal database.
	Table string `yaml:"table,omitempty"`

	// Where specifies row filters (used by final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Category and IDs are used by visible. An empty Category means the
	// active one.
	Category string   `yaml:"category,omitempty"`
	IDs      []string `yaml:"ids,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertVisible       = "visible"
)

// Flow operations.
const (
	OpLoad           = "load"
	OpSync           = "sync"
	OpReload         = "reload"
	OpActivate       = "activate"
	OpOpenDetail     = "open_detail"
	OpFavorite       = "favorite"
	OpTrash          = "trash"
	OpRestore        = "restore"
	OpMove           = "move"
	OpDelete         = "delete"
	OpEmptyTrash     = "empty_trash"
	OpShield         = "shield"
	OpProxyFallback  = "proxy_fallback"
	OpCreateCategory = "create_category"
	OpRenameCategory = "rename_category"
	OpDeleteCategory = "delete_category"
	OpSave           = "save"
	OpPush           = "push"
)

// required lists the fields each op needs.
var required = map[string][]string{
	OpLoad:           nil,
	OpSync:           nil,
	OpReload:         nil,
	OpActivate:       {"category"},
	OpOpenDetail:     {"id"},
	OpFavorite:       {"id"},
	OpTrash:          {"id"},
	OpRestore:        {"id", "category"},
	OpMove:           {"id", "category"},
	OpDelete:         {"id"},
	OpEmptyTrash:     nil,
	OpShield:         {"id"},
	OpProxyFallback:  {"id"},
	OpCreateCategory: {"name"},
	OpRenameCategory: {"name", "new_name"},
	OpDeleteCategory: {"name"},
	OpSave:           {"url", "category"},
	OpPush:           {"message"},
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, img := range s.Setup.Images {
		if img.ID == "" {
			return fmt.Errorf("setup.images[%d]: id is required", i)
		}
		if seen[img.ID] {
			return fmt.Errorf("setup.images[%d]: duplicate id %q", i, img.ID)
		}
		seen[img.ID] = true
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *FlowStep) error {
	if step.Op == "" {
		return fmt.Errorf("flow[%d]: op is required", index)
	}
	fields, ok := required[step.Op]
	if !ok {
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}
	for _, field := range fields {
		var missing bool
		switch field {
		case "id":
			missing = step.ID == ""
		case "category":
			missing = step.Category == ""
		case "name":
			missing = step.Name == ""
		case "new_name":
			missing = step.NewName == ""
		case "url":
			missing = step.URL == ""
		case "message":
			missing = step.Message == nil || step.Message.Type == ""
		}
		if missing {
			return fmt.Errorf("flow[%d]: %s is required for %s", index, field, step.Op)
		}
	}

	switch step.Resolve {
	case "", "delete_images", "cancel":
	case "move_images":
		if step.MoveTo == "" {
			return fmt.Errorf("flow[%d]: move_to is required for move_images", index)
		}
	default:
		return fmt.Errorf("flow[%d]: unknown resolve %q", index, step.Resolve)
	}

	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("flow[%d].expect: outcome is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) == 0 {
			return fmt.Errorf("assertions[%d]: sequence list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertVisible:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for visible (use [] for none)", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
