// Package mutation performs user-initiated changes to single images and to
// the trash.
//
// Each operation checks its local preconditions, calls the store, and only
// after the store confirms applies the accepted result to the engine. A
// failed call leaves the mirror untouched.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
)

// ErrDeclined is returned when the user declines a confirmation prompt.
var ErrDeclined = errors.New("declined by user")

// Remote is the subset of the store API used for image mutations.
type Remote interface {
	Trash(ctx context.Context, id string) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	ChangeCategory(ctx context.Context, id, category string, restore bool) error
	PermanentDelete(ctx context.Context, id string) error
	EmptyTrash(ctx context.Context) (int, error)
	VerifyAndShield(ctx context.Context, id string) (string, error)
}

// Prompt describes a destructive action awaiting confirmation.
type Prompt struct {
	Title   string
	Message string
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// Coordinator runs image mutations against the store and the engine.
type Coordinator struct {
	engine    *engine.Engine
	remote    Remote
	confirm   Confirmer
	endpoints remote.Endpoints
	logger    *slog.Logger
}

// New creates a Coordinator. endpoints supplies the relay address used by
// FallbackToProxy.
func New(e *engine.Engine, r Remote, c Confirmer, endpoints remote.Endpoints, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		engine:    e,
		remote:    r,
		confirm:   c,
		endpoints: endpoints,
		logger:    logger,
	}
}

// ToggleFavorite flips the favorite flag and returns the value the store
// stored.
func (c *Coordinator) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	const op = "toggle favorite"
	if _, err := c.require(op, id); err != nil {
		return false, err
	}

	var fav bool
	err := c.call(ctx, op, id, func() error {
		var err error
		fav, err = c.remote.ToggleFavorite(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}
	c.engine.Apply(ctx, engine.FavoriteToggled{ID: id, IsFavorite: fav})
	return fav, nil
}

// MoveToTrash moves an image to the trash.
func (c *Coordinator) MoveToTrash(ctx context.Context, id string) error {
	const op = "trash"
	img, err := c.require(op, id)
	if err != nil {
		return err
	}
	if img.IsDeleted {
		return engine.Reject(op, id, "image is already in the trash")
	}

	if err := c.call(ctx, op, id, func() error {
		return c.remote.Trash(ctx, id)
	}); err != nil {
		return err
	}
	c.engine.Apply(ctx, engine.ImageTrashed{ID: id})
	return nil
}

// Restore takes an image out of the trash into category.
func (c *Coordinator) Restore(ctx context.Context, id, category string) error {
	const op = "restore"
	img, err := c.require(op, id)
	if err != nil {
		return err
	}
	if !img.IsDeleted {
		return engine.Reject(op, id, "image is not in the trash")
	}
	if err := c.checkDestination(op, id, category); err != nil {
		return err
	}

	if err := c.call(ctx, op, id, func() error {
		return c.remote.ChangeCategory(ctx, id, category, true)
	}); err != nil {
		return err
	}
	c.engine.Apply(ctx, engine.ImageUpdated{ID: id, Patch: model.Patch{
		Category:  model.String(category),
		IsDeleted: model.Bool(false),
	}})
	return nil
}

// ChangeCategory moves a live image to category.
func (c *Coordinator) ChangeCategory(ctx context.Context, id, category string) error {
	const op = "change category"
	img, err := c.require(op, id)
	if err != nil {
		return err
	}
	if img.IsDeleted {
		return engine.Reject(op, id, "image is in the trash; restore it instead")
	}
	if err := c.checkDestination(op, id, category); err != nil {
		return err
	}
	if img.Category == category {
		return nil
	}

	if err := c.call(ctx, op, id, func() error {
		return c.remote.ChangeCategory(ctx, id, category, false)
	}); err != nil {
		return err
	}
	c.engine.Apply(ctx, engine.ImageUpdated{ID: id, Patch: model.Patch{
		Category: model.String(category),
	}})
	return nil
}

// PermanentDelete removes an image for good after confirmation. It returns
// false with no remote call when the user declines.
func (c *Coordinator) PermanentDelete(ctx context.Context, id string) (bool, error) {
	const op = "permanent delete"
	if _, err := c.require(op, id); err != nil {
		return false, err
	}

	ok, err := c.confirm.Confirm(ctx, Prompt{
		Title:   "Delete permanently?",
		Message: "The image and its archived copy will be removed. This cannot be undone.",
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := c.call(ctx, op, id, func() error {
		return c.remote.PermanentDelete(ctx, id)
	}); err != nil {
		return false, err
	}
	c.engine.Apply(ctx, engine.ImageRemoved{ID: id})
	return true, nil
}

// EmptyTrash permanently removes every trashed image after confirmation. It
// returns the number of records removed from the mirror. A declined prompt
// returns ErrDeclined.
func (c *Coordinator) EmptyTrash(ctx context.Context) (int, error) {
	const op = "empty trash"
	count := c.engine.TrashCount()
	if count == 0 {
		return 0, engine.Reject(op, "", "trash is already empty")
	}

	ok, err := c.confirm.Confirm(ctx, Prompt{
		Title:   "Empty trash?",
		Message: pluralImages(count) + " will be deleted permanently.",
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrDeclined
	}

	var reported int
	if err := c.call(ctx, op, "", func() error {
		var err error
		reported, err = c.remote.EmptyTrash(ctx)
		return err
	}); err != nil {
		return 0, err
	}

	removed := c.engine.Apply(ctx, engine.TrashEmptied{})
	if reported >= 0 && reported != removed {
		c.logger.Info("trash count differs from store",
			"local", removed,
			"store", reported,
		)
	}
	return removed, nil
}

// Shield archives the downloaded copy of an image on the store side and
// returns the archived path.
func (c *Coordinator) Shield(ctx context.Context, id string) (string, error) {
	const op = "shield"
	img, err := c.require(op, id)
	if err != nil {
		return "", err
	}
	if img.IsSafe {
		return "", engine.Reject(op, id, "image is already archived")
	}

	var path string
	if err := c.call(ctx, op, id, func() error {
		var err error
		path, err = c.remote.VerifyAndShield(ctx, id)
		return err
	}); err != nil {
		return "", err
	}
	c.engine.Apply(ctx, engine.ImageUpdated{ID: id, Patch: model.Patch{
		IsSafe:   model.Bool(true),
		SafePath: model.String(path),
	}})
	return path, nil
}

// FallbackToProxy switches an image that failed to load from its origin to
// the store's relay. It happens at most once per image and never reaches
// the store. It reports whether the switch happened.
func (c *Coordinator) FallbackToProxy(ctx context.Context, id string) bool {
	img, ok := c.engine.Image(id)
	if !ok || img.ProxyTried || img.IsSafe {
		return false
	}
	c.engine.Apply(ctx, engine.ImageUpdated{ID: id, Patch: model.Patch{
		IsCORS:     model.Bool(true),
		ProxyURL:   model.String(c.endpoints.ProxyURL(img.OriginalURL)),
		ProxyTried: model.Bool(true),
	}})
	return true
}

// OpenDetail opens the detail view of id and returns the address it is
// displayed from. Trashed images cannot be opened.
func (c *Coordinator) OpenDetail(id string) (string, error) {
	if err := c.engine.OpenDetail(id); err != nil {
		return "", err
	}
	return c.DisplayURL(id)
}

// DisplayURL returns the address an image should be loaded from.
func (c *Coordinator) DisplayURL(id string) (string, error) {
	img, err := c.require("display", id)
	if err != nil {
		return "", err
	}
	return c.endpoints.Href(model.Resolve(img)), nil
}

func (c *Coordinator) require(op, id string) (model.Image, error) {
	img, ok := c.engine.Image(id)
	if !ok {
		return model.Image{}, &engine.SyncError{
			Code:    engine.ErrCodeNotFound,
			Op:      op,
			ID:      id,
			Message: "image not found",
		}
	}
	return img, nil
}

func (c *Coordinator) checkDestination(op, id, category string) error {
	if category == "" {
		return engine.Reject(op, id, "destination category is required")
	}
	if model.KindOf(category) != model.KindUserDefined {
		return engine.Reject(op, id, "%q is not a user category", category)
	}
	if !c.engine.HasCategory(category) {
		return engine.Reject(op, id, "category %q does not exist", category)
	}
	return nil
}

// call marks the image busy for the duration of fn and classifies its error.
//
// A full reload during fn discards the busy set, and a mutation started
// after it owns the flag, so a stale call leaves the flag alone. Its result
// is still applied by the caller: patches are scoped to one id and
// idempotent.
func (c *Coordinator) call(ctx context.Context, op, id string, fn func() error) error {
	gen := c.engine.Generation()
	if id != "" {
		c.engine.SetBusy(id, true)
		defer func() {
			if c.engine.Generation() == gen {
				c.engine.SetBusy(id, false)
			}
		}()
	}

	if err := fn(); err != nil {
		err = engine.Classify(op, id, err)
		c.logger.Warn("mutation failed", "op", op, "id", id, "error", err)
		return err
	}

	if c.engine.Generation() != gen {
		c.logger.Info("mirror reloaded during mutation", "op", op, "id", id)
	}
	c.logger.Debug("mutation accepted", "op", op, "id", id)
	return nil
}

func pluralImages(n int) string {
	if n == 1 {
		return "1 image"
	}
	return strconv.Itoa(n) + " images"
}
