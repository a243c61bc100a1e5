package engine

import (
	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/model"
)

// Images returns every cached image, newest first.
func (e *Engine) Images() []model.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Images()
}

// Image returns the cached image with id.
func (e *Engine) Image(id string) (model.Image, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Get(id)
}

// Categories returns the registry in store order.
func (e *Engine) Categories() []model.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Categories()
}

// Manageable returns the categories the user may rename or delete.
func (e *Engine) Manageable() []model.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Manageable()
}

// HasCategory reports whether name is registered, compared exactly.
func (e *Engine) HasCategory(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Has(name)
}

// HasCategoryFold reports whether name is registered, ignoring case.
func (e *Engine) HasCategoryFold(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.HasFold(name)
}

// FindCategoryFold returns the stored spelling of a category matching name
// case-insensitively, other than the one named exactly except.
func (e *Engine) FindCategoryFold(name, except string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.FindFold(name, except)
}

// UserDefinedCount returns the number of user-defined categories.
func (e *Engine) UserDefinedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.UserDefinedCount()
}

// Navigation returns the category names to offer as navigation targets.
func (e *Engine) Navigation() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Navigation(e.cache.Images())
}

// CountInCategory returns the number of non-deleted images in category.
func (e *Engine) CountInCategory(category string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Count(func(img model.Image) bool {
		return !img.IsDeleted && img.Category == category
	})
}

// TrashCount returns the number of deleted images.
func (e *Engine) TrashCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Count(func(img model.Image) bool { return img.IsDeleted })
}

// Visible returns the images shown under the active category.
func (e *Engine) Visible() []model.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cache.Visible(e.cache.Images(), e.ui.active)
}

// VisibleIn returns the images shown under category.
func (e *Engine) VisibleIn(category string) []model.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cache.Visible(e.cache.Images(), category)
}

// View returns the current derived state.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked(e.clock.Current(), "")
}

// ActiveCategory returns the category currently shown.
func (e *Engine) ActiveCategory() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ui.active
}

// SetActiveCategory switches the category shown. Any name is accepted;
// an unknown category simply shows nothing.
func (e *Engine) SetActiveCategory(name string) {
	e.mu.Lock()
	e.ui.active = name
	view := e.viewLocked(e.clock.Current(), "")
	observers := e.observers
	e.mu.Unlock()

	for _, o := range observers {
		o.Changed(view)
	}
}

// OpenDetail opens the detail view for id. Trashed and unknown images are
// refused.
func (e *Engine) OpenDetail(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	img, ok := e.cache.Get(id)
	if !ok {
		return &SyncError{Code: ErrCodeNotFound, Op: "open detail", ID: id, Message: "image not found"}
	}
	if img.IsDeleted {
		return Reject("open detail", id, "image is in the trash")
	}
	e.ui.detail = id
	return nil
}

// CloseDetail closes the detail view.
func (e *Engine) CloseDetail() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ui.detail = ""
}

// DetailID returns the image shown in the detail view, or "".
func (e *Engine) DetailID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ui.detail
}

// SetBusy marks an image as having a mutation in flight.
func (e *Engine) SetBusy(id string, busy bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if busy {
		e.ui.busy[id] = true
		return
	}
	delete(e.ui.busy, id)
}

// Busy reports whether an image has a mutation in flight.
func (e *Engine) Busy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ui.busy[id]
}

// Generation counts full reloads. A mutation that started under an older
// generation completes against a mirror that has since been replaced.
func (e *Engine) Generation() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ui.generation
}
