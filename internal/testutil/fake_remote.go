package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
)

// FakeRemote is an in-memory image store with the same contract as the real
// one: the same rejections, the same push messages, and the same favorite
// protection when a category is deleted.
//
// It satisfies every store interface used by the engine, the coordinators
// and the live manager. Thread-safe.
type FakeRemote struct {
	mu         sync.Mutex
	images     []model.Image // newest first
	categories []model.Category
	conns      map[*fakeConn]struct{}
	failNext   map[string]error
	down       bool
	calls      []string
	newID      func() string
	idSeq      int
}

// FakeOption configures a FakeRemote.
type FakeOption func(*FakeRemote)

// WithSequentialIDs makes saved images get ids "img-1", "img-2", ...
func WithSequentialIDs() FakeOption {
	return func(f *FakeRemote) {
		f.newID = func() string {
			f.idSeq++
			return fmt.Sprintf("img-%d", f.idSeq)
		}
	}
}

// NewFakeRemote creates an empty store.
func NewFakeRemote(opts ...FakeOption) *FakeRemote {
	f := &FakeRemote{
		conns:    make(map[*fakeConn]struct{}),
		failNext: make(map[string]error),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Seed replaces the store contents. images are given newest first.
func (f *FakeRemote) Seed(images []model.Image, categories ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append([]model.Image(nil), images...)
	f.categories = f.categories[:0]
	for _, name := range categories {
		f.categories = append(f.categories, model.Category{Name: name})
	}
}

// Images returns the stored images, newest first.
func (f *FakeRemote) Images() []model.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Image(nil), f.images...)
}

// Image returns the stored image with id.
func (f *FakeRemote) Image(id string) (model.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexLocked(id); i >= 0 {
		return f.images[i], true
	}
	return model.Image{}, false
}

// CategoryNames returns the stored category names in order.
func (f *FakeRemote) CategoryNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.categories))
	for i, c := range f.categories {
		out[i] = c.Name
	}
	return out
}

// Calls returns the operations invoked so far, in order.
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times op was invoked.
func (f *FakeRemote) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// FailNext makes the next call of op return err instead of running.
func (f *FakeRemote) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = err
}

// SetDown makes every call fail with a transport error and drops live
// connections.
func (f *FakeRemote) SetDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
	if down {
		f.DropConnections()
	}
}

// beginLocked records op and returns an injected failure, if any.
// Must be called with f.mu held.
func (f *FakeRemote) beginLocked(op string) error {
	f.calls = append(f.calls, op)
	if f.down {
		return &remote.TransportError{Op: op, Err: errors.New("connection refused")}
	}
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func statusErr(op string, status int, detail string) error {
	return &remote.StatusError{Op: op, Status: status, Detail: detail}
}

func (f *FakeRemote) indexLocked(id string) int {
	for i := range f.images {
		if f.images[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *FakeRemote) hasCategoryLocked(name string) bool {
	for _, c := range f.categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// FetchImages returns every stored image. Local-only display fields are
// never stored, so they are never returned.
func (f *FakeRemote) FetchImages(ctx context.Context) ([]model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.beginLocked("fetch images"); err != nil {
		return nil, err
	}
	out := make([]model.Image, len(f.images))
	for i, img := range f.images {
		img.ProxyTried = false
		out[i] = img
	}
	return out, nil
}

// FetchCategories returns the category list.
func (f *FakeRemote) FetchCategories(ctx context.Context) ([]model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.beginLocked("fetch categories"); err != nil {
		return nil, err
	}
	return append([]model.Category(nil), f.categories...), nil
}

// Trash moves an image to the trash. Favorites are refused.
func (f *FakeRemote) Trash(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "trash"
	if err := f.beginLocked(op); err != nil {
		return err
	}
	i := f.indexLocked(id)
	if i < 0 {
		return statusErr(op, http.StatusNotFound, "Image not found")
	}
	if f.images[i].IsFavorite {
		return statusErr(op, http.StatusBadRequest, "Favorites cannot be deleted")
	}
	f.images[i].IsDeleted = true
	f.broadcastLocked(engineMsg(engine.MsgImageTrashed, map[string]any{"id": id}))
	return nil
}

// ToggleFavorite flips the favorite flag. Trashed images are refused.
func (f *FakeRemote) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "toggle favorite"
	if err := f.beginLocked(op); err != nil {
		return false, err
	}
	i := f.indexLocked(id)
	if i < 0 {
		return false, statusErr(op, http.StatusNotFound, "Image not found")
	}
	if f.images[i].IsDeleted {
		return false, statusErr(op, http.StatusBadRequest, "A deleted image cannot be a favorite")
	}
	f.images[i].IsFavorite = !f.images[i].IsFavorite
	fav := f.images[i].IsFavorite
	f.broadcastLocked(engineMsg(engine.MsgFavoriteToggled, map[string]any{"id": id, "isFavorite": fav}))
	return fav, nil
}

// ChangeCategory moves an image, optionally restoring it from the trash.
func (f *FakeRemote) ChangeCategory(ctx context.Context, id, category string, restore bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "change category"
	if err := f.beginLocked(op); err != nil {
		return err
	}
	i := f.indexLocked(id)
	if i < 0 {
		return statusErr(op, http.StatusNotFound, "Image not found")
	}
	f.images[i].Category = category
	payload := map[string]any{"id": id, "category": category, "isDeleted": nil}
	if restore {
		f.images[i].IsDeleted = false
		payload["isDeleted"] = false
	}
	f.broadcastLocked(engineMsg(engine.MsgImageUpdated, payload))
	return nil
}

// PermanentDelete removes an image. The store does not push this change.
func (f *FakeRemote) PermanentDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "permanent delete"
	if err := f.beginLocked(op); err != nil {
		return err
	}
	i := f.indexLocked(id)
	if i < 0 {
		return statusErr(op, http.StatusNotFound, "Image not found")
	}
	f.images = append(f.images[:i], f.images[i+1:]...)
	return nil
}

// EmptyTrash removes every trashed image. Like the real store it does not
// report how many were removed.
func (f *FakeRemote) EmptyTrash(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.beginLocked("empty trash"); err != nil {
		return 0, err
	}
	kept := f.images[:0]
	for _, img := range f.images {
		if !img.IsDeleted {
			kept = append(kept, img)
		}
	}
	f.images = kept
	f.broadcastLocked(remote.Message{Type: engine.MsgTrashEmptied})
	return -1, nil
}

// CreateCategory adds a category. Case-insensitive duplicates are refused.
func (f *FakeRemote) CreateCategory(ctx context.Context, name string) (model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "create category"
	if err := f.beginLocked(op); err != nil {
		return model.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Category{}, statusErr(op, http.StatusBadRequest, "Category name is empty")
	}
	for _, c := range f.categories {
		if strings.EqualFold(c.Name, name) {
			return model.Category{}, statusErr(op, http.StatusConflict, "Category already exists")
		}
	}
	cat := model.Category{Name: name}
	f.categories = append(f.categories, cat)
	return cat, nil
}

// RenameCategory renames or, with merge, folds old into an existing new.
func (f *FakeRemote) RenameCategory(ctx context.Context, oldName, newName string, merge bool) (remote.RenameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "rename category"
	if err := f.beginLocked(op); err != nil {
		return remote.RenameResult{}, err
	}
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return remote.RenameResult{}, statusErr(op, http.StatusBadRequest, "Category name cannot be empty")
	}
	if !f.hasCategoryLocked(oldName) {
		return remote.RenameResult{}, statusErr(op, http.StatusNotFound, "Old category not found")
	}
	existsNew := f.hasCategoryLocked(newName)
	if existsNew && !merge {
		return remote.RenameResult{
			Status:   remote.RenameConflict,
			Message:  "Category already exists",
			CanMerge: true,
		}, nil
	}

	next := make([]model.Category, 0, len(f.categories))
	for _, c := range f.categories {
		if c.Name == oldName {
			if !existsNew {
				next = append(next, model.Category{Name: newName})
			}
			continue
		}
		next = append(next, c)
	}
	f.categories = next

	for i := range f.images {
		if f.images[i].Category == oldName {
			f.images[i].Category = newName
		}
	}

	status := remote.RenameRenamed
	if existsNew {
		status = remote.RenameMerged
	}
	return remote.RenameResult{Status: status, Old: oldName, New: newName}, nil
}

// DeleteCategory deletes a category. Without an action a non-empty category
// is only counted. Favorites are never deleted or moved: they are
// reassigned to the auto category.
func (f *FakeRemote) DeleteCategory(ctx context.Context, req remote.DeleteRequest) (remote.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "delete category"
	if err := f.beginLocked(op); err != nil {
		return remote.DeleteResult{}, err
	}
	if !f.hasCategoryLocked(req.Name) {
		return remote.DeleteResult{}, statusErr(op, http.StatusNotFound, "Category not found")
	}

	var related []int
	for i, img := range f.images {
		if img.Category == req.Name && !img.IsDeleted {
			related = append(related, i)
		}
	}
	if len(related) > 0 && req.Action == remote.DeleteIfEmpty {
		return remote.DeleteResult{Status: remote.DeleteHasImages, Count: len(related)}, nil
	}
	if req.Action == remote.DeleteMoveImages && req.MoveTo == "" {
		return remote.DeleteResult{}, statusErr(op, http.StatusBadRequest, "moveTo is required")
	}

	protected := 0
	for _, i := range related {
		img := &f.images[i]
		if img.IsFavorite {
			if !f.hasCategoryLocked(model.CategoryAutoFavorites) {
				f.categories = append(f.categories, model.Category{Name: model.CategoryAutoFavorites})
			}
			img.Category = model.CategoryAutoFavorites
			protected++
			continue
		}
		switch req.Action {
		case remote.DeleteImages:
			img.IsDeleted = true
		case remote.DeleteMoveImages:
			img.Category = req.MoveTo
		}
	}

	next := f.categories[:0]
	for _, c := range f.categories {
		if c.Name != req.Name {
			next = append(next, c)
		}
	}
	f.categories = next

	f.broadcastLocked(engineMsg(engine.MsgCategoriesUpdated, f.categories))
	return remote.DeleteResult{
		Status:             remote.DeleteDone,
		Affected:           len(related),
		FavoritesProtected: protected,
	}, nil
}

// VerifyAndShield archives the image and asks every client to reload.
func (f *FakeRemote) VerifyAndShield(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const op = "shield"
	if err := f.beginLocked(op); err != nil {
		return "", err
	}
	i := f.indexLocked(id)
	if i < 0 {
		return "", statusErr(op, http.StatusNotFound, "Image not found in database")
	}
	safe := path.Join("safe", id+path.Ext(f.images[i].OriginalURL))
	f.images[i].IsSafe = true
	f.images[i].SafePath = safe
	f.broadcastLocked(remote.Message{Type: engine.MsgReloadData, Message: "image archived"})
	return safe, nil
}

// SaveImage stores a captured image unless its URL is already stored.
func (f *FakeRemote) SaveImage(ctx context.Context, draft remote.ImageDraft) (remote.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.beginLocked("save image"); err != nil {
		return remote.SaveResult{}, err
	}
	for _, img := range f.images {
		if img.OriginalURL == draft.OriginalURL {
			return remote.SaveResult{Status: remote.SaveAlreadyExists, Message: "Image already saved"}, nil
		}
	}
	img := model.Image{
		ID:          f.newID(),
		Site:        draft.Site,
		OriginalURL: draft.OriginalURL,
		Category:    draft.Category,
		Width:       draft.Width,
		Height:      draft.Height,
	}
	f.images = append([]model.Image{img}, f.images...)
	f.broadcastLocked(engineMsg(engine.MsgNewImage, img))
	return remote.SaveResult{Status: remote.SaveSuccess, ID: img.ID}, nil
}
