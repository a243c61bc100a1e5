package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
)

type stubPuller struct {
	mu         sync.Mutex
	images     []model.Image
	categories []model.Category
	err        error
	pulls      int
}

func (p *stubPuller) FetchImages(ctx context.Context) ([]model.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulls++
	if p.err != nil {
		return nil, p.err
	}
	return append([]model.Image(nil), p.images...), nil
}

func (p *stubPuller) FetchCategories(ctx context.Context) ([]model.Category, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return append([]model.Category(nil), p.categories...), nil
}

type journalEntry struct {
	session string
	seq     int64
	kind    string
}

type memJournal struct {
	entries []journalEntry
}

func (j *memJournal) Append(ctx context.Context, session string, seq int64, kind string, payload []byte) error {
	j.entries = append(j.entries, journalEntry{session: session, seq: seq, kind: kind})
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureImages() []model.Image {
	return []model.Image{
		{ID: "1", Category: "A", IsFavorite: true},
		{ID: "2", Category: "A"},
		{ID: "3", Category: "B", IsFavorite: true},
		{ID: "4", Category: "B", IsDeleted: true},
	}
}

func fixtureCategories() []model.Category {
	return []model.Category{{Name: "A"}, {Name: "B"}}
}

func newLoadedEngine(t *testing.T, opts ...Option) (*Engine, *stubPuller) {
	t.Helper()
	p := &stubPuller{images: fixtureImages(), categories: fixtureCategories()}
	e := New(p, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, e.Load(context.Background()))
	return e, p
}

func TestEngine_Load(t *testing.T) {
	e, _ := newLoadedEngine(t)

	assert.Len(t, e.Images(), 4)
	assert.Equal(t, fixtureCategories(), e.Categories())
	assert.Equal(t, model.CategoryAll, e.ActiveCategory())
	assert.Equal(t, []string{"1", "2", "3"}, cache.IDs(e.Visible()))
	assert.Equal(t, 1, e.TrashCount())
}

func TestEngine_Load_FailureLeavesMirror(t *testing.T) {
	e, p := newLoadedEngine(t)
	before := e.Images()

	p.err = &remote.TransportError{Op: "fetch images", Err: errors.New("connection refused")}
	err := e.Load(context.Background())

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, before, e.Images())
}

func TestEngine_NoPuller(t *testing.T) {
	e := New(nil, WithLogger(quietLogger()))

	assert.ErrorIs(t, e.Load(context.Background()), ErrNoStore)
	_, err := e.SyncMissing(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestEngine_ImageAdded_NeverDuplicates(t *testing.T) {
	e, _ := newLoadedEngine(t)
	ctx := context.Background()

	added := model.Image{ID: "5", Category: "A"}
	e.Apply(ctx, ImageAdded{Image: added})
	e.Apply(ctx, ImageAdded{Image: added})

	ids := cache.IDs(e.Images())
	assert.Equal(t, []string{"5", "1", "2", "3", "4"}, ids)

	// Re-adding an existing id moves it to the front without duplicating.
	e.Apply(ctx, ImageAdded{Image: model.Image{ID: "3", Category: "B"}})
	assert.Equal(t, []string{"3", "5", "1", "2", "4"}, cache.IDs(e.Images()))
}

func TestEngine_Apply_Idempotent(t *testing.T) {
	events := []Event{
		ImageAdded{Image: model.Image{ID: "9", Category: "A"}},
		ImageUpdated{ID: "2", Patch: model.Patch{Category: model.String("B")}},
		ImageRemoved{ID: "1"},
		ImageTrashed{ID: "3"},
		FavoriteToggled{ID: "2", IsFavorite: true},
		CategoriesChanged{Categories: []model.Category{{Name: "A"}, {Name: "C"}}},
		CategoryAdded{Category: model.Category{Name: "D"}},
		TrashEmptied{},
		Reconciled{Images: []model.Image{{ID: "7", Category: "A"}}},
	}

	for _, ev := range events {
		t.Run(ev.Kind(), func(t *testing.T) {
			e, _ := newLoadedEngine(t)
			ctx := context.Background()

			e.Apply(ctx, ev)
			once := e.Images()
			onceCats := e.Categories()

			e.Apply(ctx, ev)
			assert.Equal(t, once, e.Images())
			assert.Equal(t, onceCats, e.Categories())
		})
	}
}

func TestEngine_ImageUpdated_UnknownIgnored(t *testing.T) {
	e, _ := newLoadedEngine(t)

	n := e.Apply(context.Background(), ImageUpdated{ID: "nope", Patch: model.Patch{IsFavorite: model.Bool(true)}})

	assert.Equal(t, 0, n)
	assert.Len(t, e.Images(), 4)
}

func TestEngine_FavoriteToggled_UsesStoredValue(t *testing.T) {
	e, _ := newLoadedEngine(t)
	ctx := context.Background()

	e.Apply(ctx, FavoriteToggled{ID: "2", IsFavorite: true})
	img, ok := e.Image("2")
	require.True(t, ok)
	assert.True(t, img.IsFavorite)

	e.Apply(ctx, FavoriteToggled{ID: "2", IsFavorite: true})
	img, _ = e.Image("2")
	assert.True(t, img.IsFavorite, "same value twice must not flip")
}

func TestEngine_TrashEmptied_RemovesOnlyDeleted(t *testing.T) {
	e, _ := newLoadedEngine(t)

	n := e.Apply(context.Background(), TrashEmptied{})

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1", "2", "3"}, cache.IDs(e.Images()))
	assert.Equal(t, 0, e.TrashCount())
}

func TestEngine_SyncMissing_NonDestructive(t *testing.T) {
	e, p := newLoadedEngine(t)
	ctx := context.Background()

	// Local state diverges from the store for image 1.
	e.Apply(ctx, FavoriteToggled{ID: "1", IsFavorite: false})

	p.images = []model.Image{
		{ID: "6", Category: "A"},
		{ID: "5", Category: "B"},
		{ID: "1", Category: "A", IsFavorite: true},
	}

	added, err := e.SyncMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	assert.Equal(t, []string{"6", "5", "1", "2", "3", "4"}, cache.IDs(e.Images()))
	img, _ := e.Image("1")
	assert.False(t, img.IsFavorite, "existing record must not be overwritten")
	_, ok := e.Image("4")
	assert.True(t, ok, "records absent remotely must not be removed")

	added, err = e.SyncMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestEngine_Snapshot_RetargetsMissingCategory(t *testing.T) {
	e, p := newLoadedEngine(t, WithActiveCategory("B"))
	require.Equal(t, "B", e.ActiveCategory())

	p.categories = []model.Category{{Name: "A"}}
	require.NoError(t, e.Load(context.Background()))

	assert.Equal(t, model.CategoryAll, e.ActiveCategory())
}

func TestEngine_Snapshot_KeepsSystemCategory(t *testing.T) {
	e, _ := newLoadedEngine(t, WithActiveCategory(model.CategoryTrash))

	e.Apply(context.Background(), CategoriesChanged{Categories: []model.Category{{Name: "A"}}})

	assert.Equal(t, model.CategoryTrash, e.ActiveCategory())
	assert.Equal(t, []string{"4"}, cache.IDs(e.Visible()))
}

func TestEngine_Detail(t *testing.T) {
	e, _ := newLoadedEngine(t)
	ctx := context.Background()

	err := e.OpenDetail("4")
	require.Error(t, err)
	assert.True(t, IsPrecondition(err), "trashed images cannot be opened")

	err = e.OpenDetail("missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, e.OpenDetail("2"))
	assert.Equal(t, "2", e.DetailID())

	e.Apply(ctx, ImageTrashed{ID: "2"})
	assert.Equal(t, "", e.DetailID(), "trashing closes the detail view")

	require.NoError(t, e.OpenDetail("1"))
	e.Apply(ctx, ImageRemoved{ID: "1"})
	assert.Equal(t, "", e.DetailID())
}

func TestEngine_FullReload_ClearsSession(t *testing.T) {
	e, p := newLoadedEngine(t)
	ctx := context.Background()

	require.NoError(t, e.OpenDetail("1"))
	e.SetBusy("2", true)
	gen := e.Generation()

	p.images = []model.Image{{ID: "8", Category: "A"}}
	require.NoError(t, e.Reload(ctx, "server restarted"))

	assert.Equal(t, "", e.DetailID())
	assert.False(t, e.Busy("2"))
	assert.Equal(t, gen+1, e.Generation())
	assert.Equal(t, []string{"8"}, cache.IDs(e.Images()))
}

func TestEngine_Observer(t *testing.T) {
	var views []View
	e, _ := newLoadedEngine(t, WithObserver(ObserverFunc(func(v View) {
		views = append(views, v)
	})))

	e.Apply(context.Background(), ImageTrashed{ID: "1"})

	require.Len(t, views, 2)
	last := views[1]
	assert.Equal(t, "ImageTrashed", last.Event)
	assert.Equal(t, int64(2), last.Seq)
	assert.Equal(t, []string{"2", "3"}, cache.IDs(last.Visible))
	assert.Equal(t, 2, last.TrashCount)
	assert.Equal(t, []string{"A", "B"}, last.Navigation)
}

func TestEngine_Journal(t *testing.T) {
	j := &memJournal{}
	e, _ := newLoadedEngine(t, WithJournal(j, "session-1"), WithClock(NewClockAt(10)))
	ctx := context.Background()

	e.Apply(ctx, ImageTrashed{ID: "1"})
	e.Apply(ctx, SyncRequested{})

	require.Len(t, j.entries, 2)
	assert.Equal(t, journalEntry{session: "session-1", seq: 11, kind: "Snapshot"}, j.entries[0])
	assert.Equal(t, journalEntry{session: "session-1", seq: 12, kind: "ImageTrashed"}, j.entries[1])
	assert.Equal(t, int64(12), e.Seq())
}

func TestEngine_Run_PullPrecedesLaterEvents(t *testing.T) {
	p := &stubPuller{images: fixtureImages(), categories: fixtureCategories()}
	e := New(p, WithLogger(quietLogger()))

	// The trash event is enqueued after the pull request, so it must land
	// on top of the pulled snapshot.
	e.Enqueue(SyncRequested{Full: true})
	e.Enqueue(ImageTrashed{ID: "2"})
	e.Enqueue(ImageAdded{Image: model.Image{ID: "5", Category: "B"}})
	e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	img, ok := e.Image("2")
	require.True(t, ok)
	assert.True(t, img.IsDeleted)
	assert.Equal(t, []string{"5", "1", "2", "3", "4"}, cache.IDs(e.Images()))
}

func TestEngine_Run_PullFailureContinues(t *testing.T) {
	p := &stubPuller{err: &remote.StatusError{Op: "fetch images", Status: 503}}
	e := New(p, WithLogger(quietLogger()))

	e.Enqueue(SyncRequested{})
	e.Enqueue(ImageAdded{Image: model.Image{ID: "5", Category: "B"}})
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []string{"5"}, cache.IDs(e.Images()))
}

func TestEngine_Run_ContextCancel(t *testing.T) {
	e := New(&stubPuller{}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	assert.False(t, e.Enqueue(TrashEmptied{}), "queue closes with the loop")
}

func TestEngine_CountInCategory(t *testing.T) {
	e, _ := newLoadedEngine(t)

	assert.Equal(t, 2, e.CountInCategory("A"))
	assert.Equal(t, 1, e.CountInCategory("B"), "trashed images are not counted")
	assert.Equal(t, 2, e.UserDefinedCount())
	assert.True(t, e.HasCategoryFold("a"))
	assert.False(t, e.HasCategory("a"))
}
