package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"github.com/roach88/morgisync/internal/capture"
	"github.com/roach88/morgisync/internal/category"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/mutation"
	"github.com/roach88/morgisync/internal/remote"
	"github.com/roach88/morgisync/internal/store"
	"github.com/roach88/morgisync/internal/testutil"
)

// DefaultSession is the journal session used when a scenario names none.
const DefaultSession = "test-session"

// proxyBase is the relay address scenarios see in proxy fallbacks.
const proxyBase = "http://store.test"

// Harness runs one scenario. Every scenario gets its own fake store,
// engine and journal.
type Harness struct {
	fake     *testutil.FakeRemote
	engine   *engine.Engine
	coord    *mutation.Coordinator
	category *category.Controller
	saver    *capture.Saver
	store    *store.Store
	session  string
	live     remote.Conn
	logger   *slog.Logger
	result   *Result

	// step is the flow step being executed. Prompts answer from it.
	step *FlowStep
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes engine and coordinator logs to l. Logs are discarded
// by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Seed a fake store and open a journal in a temporary directory
//  2. Load the mirror
//  3. Execute flow steps, delivering pushed messages when the scenario is live
//  4. Check principles after every step and expect clauses per step
//  5. Replay the journal and compare it with the live mirror
//  6. Evaluate assertions
//
// A failed step or assertion is reported in the result. The returned error
// is for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	dir, err := os.MkdirTemp("", "morgisync-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}

	fake := testutil.NewFakeRemote(testutil.WithSequentialIDs())
	images := make([]model.Image, len(scenario.Setup.Images))
	for i, img := range scenario.Setup.Images {
		images[i] = img.image()
	}
	fake.Seed(images, scenario.Setup.Categories...)

	result := NewResult()
	h := &Harness{
		fake:    fake,
		store:   st,
		session: session,
		logger:  o.logger,
		result:  result,
	}

	engineOpts := []engine.Option{
		engine.WithJournal(st, session),
		engine.WithLogger(o.logger),
		engine.WithObserver(engine.ObserverFunc(h.observe)),
	}
	if scenario.Setup.Active != "" {
		engineOpts = append(engineOpts, engine.WithActiveCategory(scenario.Setup.Active))
	}
	h.engine = engine.New(fake, engineOpts...)
	h.coord = mutation.New(h.engine, fake, mutation.ConfirmFunc(h.confirm), remote.Endpoints{Base: proxyBase}, o.logger)
	h.category = category.New(h.engine, fake, h, o.logger)
	h.saver = capture.NewSaver(fake, st, o.logger)

	if scenario.Live {
		conn, err := fake.Dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open live channel: %w", err)
		}
		defer conn.Close()
		h.live = conn
	}

	if err := h.engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}

	for i := range scenario.Flow {
		h.executeStep(ctx, i, &scenario.Flow[i])
	}

	h.verifyReplay(ctx)
	h.captureState()

	actx := &AssertionContext{Store: st, Ctx: ctx, Engine: h.engine}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// observe records applied events. Views without an event come from
// switching the active category and are not part of the trace.
func (h *Harness) observe(v engine.View) {
	if v.Event == "" {
		return
	}
	h.result.AddEvent(v)
}

// executeStep runs one flow step, then delivers pushed messages, checks
// principles and the expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step *FlowStep) {
	h.step = step
	defer func() { h.step = nil }()

	at := h.result.AddStep(step.Op, step.target())
	if step.Down {
		h.fake.SetDown(true)
	}
	outcome, err := h.dispatch(ctx, step)
	if step.Down {
		h.fake.SetDown(false)
	}
	if err != nil {
		outcome = outcomeOf(err)
	}
	h.result.Trace[at].Outcome = outcome

	h.logger.Info("flow step completed",
		"step", index,
		"op", step.Op,
		"target", step.target(),
		"outcome", outcome,
	)

	h.deliverPushed(ctx)

	for _, v := range CheckPrinciples(h.engine) {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: %s", index, step.Op, v))
	}

	want := "ok"
	if step.Expect != nil {
		want = step.Expect.Outcome
	}
	if err != nil && step.Expect == nil {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", index, step.Op, err))
		return
	}
	if step.Expect != nil && outcome != want {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", index, step.Op, want, outcome))
	}
}

// dispatch runs the operation named by step.Op and returns its outcome.
func (h *Harness) dispatch(ctx context.Context, step *FlowStep) (string, error) {
	switch step.Op {
	case OpLoad:
		return "ok", h.engine.Load(ctx)

	case OpSync:
		_, err := h.engine.SyncMissing(ctx)
		return "ok", err

	case OpReload:
		return "ok", h.engine.Reload(ctx, "requested")

	case OpActivate:
		h.engine.SetActiveCategory(step.Category)
		return "ok", nil

	case OpOpenDetail:
		return "ok", h.engine.OpenDetail(step.ID)

	case OpFavorite:
		_, err := h.coord.ToggleFavorite(ctx, step.ID)
		return "ok", err

	case OpTrash:
		return "ok", h.coord.MoveToTrash(ctx, step.ID)

	case OpRestore:
		return "ok", h.coord.Restore(ctx, step.ID, step.Category)

	case OpMove:
		return "ok", h.coord.ChangeCategory(ctx, step.ID, step.Category)

	case OpDelete:
		deleted, err := h.coord.PermanentDelete(ctx, step.ID)
		if err == nil && !deleted {
			return "declined", nil
		}
		return "ok", err

	case OpEmptyTrash:
		_, err := h.coord.EmptyTrash(ctx)
		if errors.Is(err, mutation.ErrDeclined) {
			return "declined", nil
		}
		return "ok", err

	case OpShield:
		_, err := h.coord.Shield(ctx, step.ID)
		return "ok", err

	case OpProxyFallback:
		if !h.coord.FallbackToProxy(ctx, step.ID) {
			return "skipped", nil
		}
		return "ok", nil

	case OpCreateCategory:
		_, err := h.category.Create(ctx, step.Name)
		return "ok", err

	case OpRenameCategory:
		outcome, err := h.category.Rename(ctx, step.Name, step.NewName)
		return categoryOutcome(outcome), err

	case OpDeleteCategory:
		res, err := h.category.Delete(ctx, step.Name)
		return categoryOutcome(res.Outcome), err

	case OpSave:
		res, err := h.saver.Save(ctx, remote.ImageDraft{OriginalURL: step.URL, Category: step.Category})
		return res.Status.String(), err

	case OpPush:
		msg, err := step.Message.wire()
		if err != nil {
			return "", err
		}
		h.result.AddPush(msg.Type)
		return "ok", h.deliver(ctx, msg)

	default:
		return "", fmt.Errorf("unknown op %q", step.Op)
	}
}

func categoryOutcome(o category.Outcome) string {
	if o == category.Done {
		return "ok"
	}
	return o.String()
}

// outcomeOf names a step error: the sync error code, or "error".
func outcomeOf(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

// deliverPushed delivers what the store pushed during the last step, in
// order, as the live channel would.
func (h *Harness) deliverPushed(ctx context.Context) {
	if h.live == nil {
		return
	}
	for _, msg := range testutil.Drain(h.live) {
		h.result.AddPush(msg.Type)
		if err := h.deliver(ctx, msg); err != nil {
			h.result.AddError(fmt.Sprintf("deliver %s: %v", msg.Type, err))
		}
	}
}

// deliver applies one live message. A reload request is followed by a full
// pull, as in the run loop.
func (h *Harness) deliver(ctx context.Context, msg remote.Message) error {
	ev, err := engine.DecodeMessage(msg)
	if err != nil {
		return err
	}
	if reload, ok := ev.(engine.FullReload); ok {
		return h.engine.Reload(ctx, reload.Reason)
	}
	h.engine.Apply(ctx, ev)
	return nil
}

func (m *PushMessage) wire() (remote.Message, error) {
	msg := remote.Message{Type: m.Type, Message: m.Text}
	if m.Payload != nil {
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return remote.Message{}, fmt.Errorf("encode %s payload: %w", m.Type, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// verifyReplay rebuilds the mirror from the journal and compares it with
// the live one.
func (h *Harness) verifyReplay(ctx context.Context) {
	replayed, err := h.store.VerifyReplay(ctx, h.session, h.logger)
	if err != nil {
		h.result.AddError(fmt.Sprintf("replay: %v", err))
		return
	}
	if !reflect.DeepEqual(replayed.Images, h.engine.Images()) {
		h.result.AddError("replay: rebuilt images differ from the live mirror")
	}
	if !reflect.DeepEqual(replayed.Categories, h.engine.Categories()) {
		h.result.AddError("replay: rebuilt categories differ from the live mirror")
	}
}

// captureState fills the in-memory tables final_state assertions read.
func (h *Harness) captureState() {
	h.result.State["images"] = imageRows(h.engine.Images())
	h.result.State["store"] = imageRows(h.fake.Images())

	var cats []map[string]any
	for _, c := range h.engine.Categories() {
		cats = append(cats, map[string]any{"name": c.Name, "kind": c.Kind().String()})
	}
	h.result.State["categories"] = cats

	h.result.State["session"] = []map[string]any{{
		"active":       h.engine.ActiveCategory(),
		"detail":       h.engine.DetailID(),
		"trash":        h.engine.TrashCount(),
		"visible":      len(h.engine.Visible()),
		"user_defined": h.engine.UserDefinedCount(),
	}}
}

// imageRows turns images into rows keyed by their wire field names.
func imageRows(images []model.Image) []map[string]any {
	rows := make([]map[string]any, 0, len(images))
	for _, img := range images {
		data, err := json.Marshal(img)
		if err != nil {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(data, &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// confirm answers mutation prompts from the current step.
func (h *Harness) confirm(ctx context.Context, p mutation.Prompt) (bool, error) {
	return h.step.confirmed(), nil
}

// ConfirmMerge answers the rename merge prompt from the current step.
func (h *Harness) ConfirmMerge(ctx context.Context, oldName, newName string) (bool, error) {
	return h.step.confirmed(), nil
}

// ResolveDelete answers the delete-category prompt from the current step.
// A step without a resolve cancels.
func (h *Harness) ResolveDelete(ctx context.Context, name string, count int, destinations []string) (category.Resolution, error) {
	switch h.step.Resolve {
	case "delete_images":
		return category.Resolution{Action: category.DeleteImages}, nil
	case "move_images":
		return category.Resolution{Action: category.MoveImages, MoveTo: h.step.MoveTo}, nil
	default:
		return category.Resolution{Action: category.Cancel}, nil
	}
}
