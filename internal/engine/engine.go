package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/model"
)

// ErrNoStore is returned by pulls on an engine built without a Puller.
var ErrNoStore = errors.New("no store configured")

// Puller reads authoritative state from the store.
type Puller interface {
	FetchImages(ctx context.Context) ([]model.Image, error)
	FetchCategories(ctx context.Context) ([]model.Category, error)
}

// Journal records applied events.
type Journal interface {
	Append(ctx context.Context, session string, seq int64, kind string, payload []byte) error
}

// View is the derived state observers render after each applied event.
type View struct {
	Seq        int64
	Event      string
	Active     string
	Visible    []model.Image
	Navigation []string
	TrashCount int
	DetailID   string
}

// Observer is notified after every applied event.
type Observer interface {
	Changed(View)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(View)

// Changed calls f(v).
func (f ObserverFunc) Changed(v View) { f(v) }

// sessionState is UI state that never reaches the store.
type sessionState struct {
	active     string
	detail     string
	busy       map[string]bool
	generation int64
}

// Engine owns the local mirror of the store.
//
// Every mutation of the cache and registry goes through Apply, either
// directly from a command handler after the store confirms, or from the Run
// loop draining events pushed by the live channel. Apply holds the engine
// lock for the duration of one event, so each event is observed atomically.
//
// Thread-safety model:
//   - Enqueue, Apply and the query methods: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	mu       sync.Mutex
	cache    *cache.Cache
	registry *cache.Registry
	ui       sessionState

	puller    Puller
	journal   Journal
	session   string
	clock     *Clock
	queue     *eventQueue
	observers []Observer
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records every applied event under session.
func WithJournal(j Journal, session string) Option {
	return func(e *Engine) {
		e.journal = j
		e.session = session
	}
}

// WithClock sets the logical clock. Used to resume a journal session.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithActiveCategory sets the initial active category. Defaults to All.
func WithActiveCategory(name string) Option {
	return func(e *Engine) {
		e.ui.active = name
	}
}

// New creates an engine. p may be nil for an engine that only replays.
func New(p Puller, opts ...Option) *Engine {
	e := &Engine{
		cache:    cache.New(),
		registry: cache.NewRegistry(),
		ui: sessionState{
			active: model.CategoryAll,
			busy:   make(map[string]bool),
		},
		puller: p,
		clock:  NewClock(),
		queue:  newEventQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the journal session id, or "".
func (e *Engine) Session() string {
	return e.session
}

// Seq returns the sequence number of the last applied event.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// Enqueue submits an event for the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Run drains the event queue until ctx is cancelled or Stop is called.
//
// Pulls requested through SyncRequested and FullReload run inline, so
// events enqueued after a pull request are applied on top of its result.
// Failures are logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "session", e.session)

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if err := e.process(ctx, ev); err != nil {
				e.logger.Error("event processing failed",
					"kind", ev.Kind(),
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue.
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue. Run returns once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

func (e *Engine) process(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case SyncRequested:
		if ev.Full {
			return e.Load(ctx)
		}
		_, err := e.SyncMissing(ctx)
		return err

	case FullReload:
		e.Apply(ctx, ev)
		return e.Load(ctx)

	default:
		e.Apply(ctx, ev)
		return nil
	}
}

// Load pulls images and categories and replaces the mirror with them.
// On failure the mirror is left untouched.
func (e *Engine) Load(ctx context.Context) error {
	if e.puller == nil {
		return ErrNoStore
	}
	images, err := e.puller.FetchImages(ctx)
	if err != nil {
		return Classify("load images", "", err)
	}
	categories, err := e.puller.FetchCategories(ctx)
	if err != nil {
		return Classify("load categories", "", err)
	}
	e.Apply(ctx, Snapshot{Images: images, Categories: categories})
	return nil
}

// SyncMissing pulls the image list and adds records the mirror lacks.
// Existing records are never overwritten or removed. Returns the number of
// records added.
func (e *Engine) SyncMissing(ctx context.Context) (int, error) {
	if e.puller == nil {
		return 0, ErrNoStore
	}
	images, err := e.puller.FetchImages(ctx)
	if err != nil {
		return 0, Classify("sync missing", "", err)
	}
	added := e.Apply(ctx, Reconciled{Images: images})
	if added > 0 {
		e.logger.Info("synced missing images", "added", added)
	}
	return added, nil
}

// Reload discards session UI state and performs a full pull.
func (e *Engine) Reload(ctx context.Context, reason string) error {
	e.Apply(ctx, FullReload{Reason: reason})
	return e.Load(ctx)
}

// Apply applies one event, journals it and notifies observers. It returns
// the number of image records the event touched.
//
// Applying the same event twice leaves the mirror as applying it once.
func (e *Engine) Apply(ctx context.Context, ev Event) int {
	if _, ok := ev.(SyncRequested); ok {
		// Only meaningful to the Run loop.
		return 0
	}

	e.mu.Lock()
	seq := e.clock.Next()
	n := e.applyLocked(ev)
	view := e.viewLocked(seq, ev.Kind())
	observers := e.observers
	e.mu.Unlock()

	e.logger.Debug("event applied",
		"seq", seq,
		"kind", ev.Kind(),
		"touched", n,
	)

	e.record(ctx, seq, ev)

	for _, o := range observers {
		o.Changed(view)
	}
	return n
}

func (e *Engine) applyLocked(ev Event) int {
	switch ev := ev.(type) {
	case ImageAdded:
		if ev.Image.ID == "" {
			return 0
		}
		e.cache.InsertFront(ev.Image)
		return 1

	case ImageUpdated:
		if !e.cache.Patch(ev.ID, ev.Patch) {
			e.logger.Debug("update for unknown image ignored", "id", ev.ID)
			return 0
		}
		if ev.Patch.IsDeleted != nil && *ev.Patch.IsDeleted {
			e.closeDetailLocked(ev.ID)
		}
		return 1

	case ImageRemoved:
		if !e.cache.Has(ev.ID) {
			return 0
		}
		e.cache.Remove(ev.ID)
		e.closeDetailLocked(ev.ID)
		delete(e.ui.busy, ev.ID)
		return 1

	case ImageTrashed:
		if !e.cache.Patch(ev.ID, model.Patch{IsDeleted: model.Bool(true)}) {
			return 0
		}
		e.closeDetailLocked(ev.ID)
		return 1

	case FavoriteToggled:
		if !e.cache.Patch(ev.ID, model.Patch{IsFavorite: model.Bool(ev.IsFavorite)}) {
			return 0
		}
		return 1

	case CategoriesChanged:
		e.registry.Replace(ev.Categories)
		e.retargetLocked()
		return 0

	case CategoryAdded:
		e.registry.Add(ev.Category)
		return 0

	case TrashEmptied:
		n := e.cache.RemoveWhere(func(img model.Image) bool { return img.IsDeleted })
		e.pruneDetailLocked()
		return n

	case FullReload:
		e.ui.detail = ""
		e.ui.busy = make(map[string]bool)
		e.ui.generation++
		return 0

	case Snapshot:
		e.cache.Replace(ev.Images)
		e.registry.Replace(ev.Categories)
		e.retargetLocked()
		e.pruneDetailLocked()
		return e.cache.Len()

	case Reconciled:
		return e.cache.Reconcile(ev.Images)

	default:
		e.logger.Warn("unhandled event kind", "kind", ev.Kind())
		return 0
	}
}

// retargetLocked falls back to All when the active category is a
// user-defined category that no longer exists.
func (e *Engine) retargetLocked() {
	if model.KindOf(e.ui.active) != model.KindUserDefined {
		return
	}
	if e.registry.Has(e.ui.active) {
		return
	}
	e.logger.Info("active category no longer exists", "category", e.ui.active)
	e.ui.active = model.CategoryAll
}

func (e *Engine) closeDetailLocked(id string) {
	if e.ui.detail == id {
		e.ui.detail = ""
	}
}

// pruneDetailLocked closes the detail view when its image is gone or
// trashed.
func (e *Engine) pruneDetailLocked() {
	if e.ui.detail == "" {
		return
	}
	img, ok := e.cache.Get(e.ui.detail)
	if !ok || img.IsDeleted {
		e.ui.detail = ""
	}
}

func (e *Engine) record(ctx context.Context, seq int64, ev Event) {
	if e.journal == nil {
		return
	}
	kind, payload, err := EncodeEvent(ev)
	if err != nil {
		e.logger.Error("journal encode failed", "seq", seq, "kind", ev.Kind(), "error", err)
		return
	}
	if err := e.journal.Append(ctx, e.session, seq, kind, payload); err != nil {
		e.logger.Error("journal append failed", "seq", seq, "kind", kind, "error", err)
	}
}

func (e *Engine) viewLocked(seq int64, kind string) View {
	images := e.cache.Images()
	return View{
		Seq:        seq,
		Event:      kind,
		Active:     e.ui.active,
		Visible:    cache.Visible(images, e.ui.active),
		Navigation: e.registry.Navigation(images),
		TrashCount: countTrashed(images),
		DetailID:   e.ui.detail,
	}
}

func countTrashed(images []model.Image) int {
	n := 0
	for _, img := range images {
		if img.IsDeleted {
			n++
		}
	}
	return n
}
