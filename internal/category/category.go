// Package category runs the create, rename and delete lifecycle of
// user-defined categories.
//
// Rename and delete are multi-step: the store may answer with a conflict or
// a member count, and the controller asks the user how to continue before
// issuing the follow-up call. After any change that can move images between
// categories the controller refreshes the whole mirror from the store, so
// the outcome of store-side rules such as favorite protection is never
// guessed locally.
package category

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
)

// Remote is the subset of the store API used for categories.
type Remote interface {
	CreateCategory(ctx context.Context, name string) (model.Category, error)
	RenameCategory(ctx context.Context, oldName, newName string, merge bool) (remote.RenameResult, error)
	DeleteCategory(ctx context.Context, req remote.DeleteRequest) (remote.DeleteResult, error)
}

// Outcome is how a lifecycle operation ended without error.
type Outcome int

const (
	// Done means the store applied the change.
	Done Outcome = iota
	// Aborted means the user declined a merge.
	Aborted
	// Cancelled means the user chose not to delete a non-empty category.
	Cancelled
	// Unchanged means the request was a no-op, such as renaming to the
	// same name.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Cancelled:
		return "cancelled"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Action is the user's choice for the images of a non-empty category being
// deleted.
type Action int

const (
	Cancel Action = iota
	DeleteImages
	MoveImages
)

// Resolution answers a delete prompt. MoveTo is set for MoveImages.
type Resolution struct {
	Action Action
	MoveTo string
}

// Prompter asks the user to resolve multi-step operations.
type Prompter interface {
	// ConfirmMerge asks whether oldName should be merged into the existing
	// newName.
	ConfirmMerge(ctx context.Context, oldName, newName string) (bool, error)

	// ResolveDelete asks what to do with count images of name. destinations
	// lists the categories they may be moved to.
	ResolveDelete(ctx context.Context, name string, count int, destinations []string) (Resolution, error)
}

// Result reports a completed delete.
type Result struct {
	Outcome            Outcome
	Affected           int
	FavoritesProtected int
}

// Controller runs category lifecycle operations.
type Controller struct {
	engine   *engine.Engine
	remote   Remote
	prompter Prompter
	logger   *slog.Logger
}

// New creates a Controller.
func New(e *engine.Engine, r Remote, p Prompter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{engine: e, remote: r, prompter: p, logger: logger}
}

// Create adds a category. Empty names and case-insensitive duplicates are
// rejected without contacting the store.
func (c *Controller) Create(ctx context.Context, name string) (model.Category, error) {
	const op = "create category"
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Category{}, engine.Reject(op, "", "category name is empty")
	}
	if cache.IsReserved(name) {
		return model.Category{}, engine.Reject(op, name, "%q is a reserved name", name)
	}
	if c.engine.HasCategoryFold(name) {
		return model.Category{}, engine.Reject(op, name, "category already exists")
	}

	cat, err := c.remote.CreateCategory(ctx, name)
	if err != nil {
		// The store refuses invalid names with 400.
		if remote.StatusCode(err) == http.StatusBadRequest {
			return model.Category{}, &engine.SyncError{
				Code:    engine.ErrCodePrecondition,
				Op:      op,
				ID:      name,
				Message: "invalid category name",
				Err:     err,
			}
		}
		return model.Category{}, engine.Classify(op, name, err)
	}
	if cat.Name == "" {
		cat.Name = name
	}
	c.engine.Apply(ctx, engine.CategoryAdded{Category: cat})
	c.logger.Info("category created", "name", cat.Name)
	return cat, nil
}

// Rename renames oldName to newName. When newName already exists, compared
// case-insensitively, the user is asked whether to merge into the existing
// category; declining returns Aborted with nothing changed.
func (c *Controller) Rename(ctx context.Context, oldName, newName string) (Outcome, error) {
	const op = "rename category"
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return Unchanged, engine.Reject(op, oldName, "category name is empty")
	}
	if oldName == newName {
		return Unchanged, nil
	}
	if model.KindOf(oldName) != model.KindUserDefined {
		return Unchanged, engine.Reject(op, oldName, "only user categories can be renamed")
	}
	if cache.IsReserved(newName) {
		return Unchanged, engine.Reject(op, oldName, "%q is a reserved name", newName)
	}

	// The store compares names exactly, so a target differing only in case
	// from another category is a conflict it would not report.
	if existing, ok := c.engine.FindCategoryFold(newName, oldName); ok && existing != newName {
		c.logger.Info("rename conflict",
			"code", engine.ErrCodeConflict,
			"old", oldName,
			"new", newName,
			"existing", existing,
		)
		return c.merge(ctx, op, oldName, existing)
	}

	res, err := c.remote.RenameCategory(ctx, oldName, newName, false)
	if err != nil {
		return Unchanged, engine.Classify(op, oldName, err)
	}

	if res.Status == remote.RenameConflict {
		c.logger.Info("rename conflict",
			"code", engine.ErrCodeConflict,
			"old", oldName,
			"new", newName,
			"can_merge", res.CanMerge,
		)
		if !res.CanMerge {
			return Unchanged, &engine.SyncError{
				Code:    engine.ErrCodeConflict,
				Op:      op,
				ID:      oldName,
				Message: res.Message,
			}
		}
		return c.merge(ctx, op, oldName, newName)
	}

	c.renamed(ctx, oldName, newName, res.Status)
	return Done, nil
}

// merge asks to fold oldName into the existing target and, when confirmed,
// issues the merging rename.
func (c *Controller) merge(ctx context.Context, op, oldName, target string) (Outcome, error) {
	ok, err := c.prompter.ConfirmMerge(ctx, oldName, target)
	if err != nil {
		return Unchanged, err
	}
	if !ok {
		return Aborted, nil
	}
	res, err := c.remote.RenameCategory(ctx, oldName, target, true)
	if err != nil {
		return Unchanged, engine.Classify(op, oldName, err)
	}
	c.renamed(ctx, oldName, target, res.Status)
	return Done, nil
}

func (c *Controller) renamed(ctx context.Context, oldName, newName string, status remote.RenameStatus) {
	c.logger.Info("category renamed", "old", oldName, "new", newName, "status", string(status))
	if c.engine.ActiveCategory() == oldName {
		c.engine.SetActiveCategory(newName)
	}
	c.refresh(ctx)
}

// Delete removes a user-defined category. At least one user-defined
// category always remains. When the category still has images the user
// chooses to delete them, move them, or cancel.
func (c *Controller) Delete(ctx context.Context, name string) (Result, error) {
	const op = "delete category"
	name = strings.TrimSpace(name)
	if model.KindOf(name) != model.KindUserDefined || !c.engine.HasCategory(name) {
		return Result{}, engine.Reject(op, name, "not a user category")
	}
	if c.engine.UserDefinedCount() < 2 {
		return Result{}, engine.Reject(op, name, "at least one category must remain")
	}

	res, err := c.remote.DeleteCategory(ctx, remote.DeleteRequest{Name: name})
	if err != nil {
		return Result{}, engine.Classify(op, name, err)
	}

	var moveTo string
	if res.Status == remote.DeleteHasImages {
		destinations := c.destinations(name)
		choice, err := c.prompter.ResolveDelete(ctx, name, res.Count, destinations)
		if err != nil {
			return Result{}, err
		}

		req := remote.DeleteRequest{Name: name}
		switch choice.Action {
		case DeleteImages:
			req.Action = remote.DeleteImages
		case MoveImages:
			if !contains(destinations, choice.MoveTo) {
				return Result{}, engine.Reject(op, name, "cannot move images to %q", choice.MoveTo)
			}
			req.Action = remote.DeleteMoveImages
			req.MoveTo = choice.MoveTo
			moveTo = choice.MoveTo
		default:
			return Result{Outcome: Cancelled}, nil
		}

		res, err = c.remote.DeleteCategory(ctx, req)
		if err != nil {
			return Result{}, engine.Classify(op, name, err)
		}
	}

	c.logger.Info("category deleted",
		"name", name,
		"affected", res.Affected,
		"favorites_protected", res.FavoritesProtected,
	)

	if c.engine.ActiveCategory() == name {
		if moveTo != "" {
			c.engine.SetActiveCategory(moveTo)
		} else {
			c.engine.SetActiveCategory(model.CategoryAll)
		}
	}
	c.refresh(ctx)

	return Result{
		Outcome:            Done,
		Affected:           res.Affected,
		FavoritesProtected: res.FavoritesProtected,
	}, nil
}

// destinations lists the categories images of name may move to.
func (c *Controller) destinations(name string) []string {
	var out []string
	for _, cat := range c.engine.Manageable() {
		if cat.Name != name {
			out = append(out, cat.Name)
		}
	}
	return out
}

// refresh replaces the mirror with the store's state. A failed refresh is
// logged; the live channel's next reconcile or reload recovers.
func (c *Controller) refresh(ctx context.Context) {
	if err := c.engine.Load(ctx); err != nil {
		c.logger.Warn("refresh after category change failed", "error", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
