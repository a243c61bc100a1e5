package cache

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/morgisync/internal/model"
)

// Registry is the ordered category list mirrored from the remote store.
//
// System views (All, Favorites, Trash) are never stored here. The synthetic
// auto category may be.
type Registry struct {
	categories []model.Category
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// FoldName returns the comparison key for duplicate detection: NFC
// normalized, Unicode case folded, surrounding space trimmed.
func FoldName(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// IsReserved reports whether name folds onto a system view or the auto
// category, so "trash" and "ALL" are reserved as well as "Trash".
func IsReserved(name string) bool {
	key := FoldName(name)
	for _, reserved := range []string{
		model.CategoryAll,
		model.CategoryFavorites,
		model.CategoryTrash,
		model.CategoryAutoFavorites,
	} {
		if FoldName(reserved) == key {
			return true
		}
	}
	return false
}

// Replace swaps the whole list. Empty and repeated names are dropped.
func (r *Registry) Replace(list []model.Category) {
	r.categories = make([]model.Category, 0, len(list))
	for _, c := range list {
		if c.Name == "" || r.Has(c.Name) {
			continue
		}
		r.categories = append(r.categories, c)
	}
}

// Add appends c unless a category with the exact same name exists.
func (r *Registry) Add(c model.Category) {
	if c.Name == "" || r.Has(c.Name) {
		return
	}
	r.categories = append(r.categories, c)
}

// Has reports whether a category with exactly this name exists.
func (r *Registry) Has(name string) bool {
	for _, c := range r.categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// HasFold reports whether a category matching name case-insensitively
// exists.
func (r *Registry) HasFold(name string) bool {
	key := FoldName(name)
	for _, c := range r.categories {
		if FoldName(c.Name) == key {
			return true
		}
	}
	return false
}

// FindFold returns the stored spelling of the category matching name
// case-insensitively, skipping the category named exactly except.
func (r *Registry) FindFold(name, except string) (string, bool) {
	key := FoldName(name)
	for _, c := range r.categories {
		if c.Name != except && FoldName(c.Name) == key {
			return c.Name, true
		}
	}
	return "", false
}

// Categories returns a copy of the list in registry order.
func (r *Registry) Categories() []model.Category {
	out := make([]model.Category, len(r.categories))
	copy(out, r.categories)
	return out
}

// UserDefinedCount returns the number of user-defined categories. The
// synthetic auto category never counts.
func (r *Registry) UserDefinedCount() int {
	n := 0
	for _, c := range r.categories {
		if c.Kind() == model.KindUserDefined {
			n++
		}
	}
	return n
}

// Manageable returns the user-defined categories, the ones shown on
// management surfaces and offered as move or restore targets.
func (r *Registry) Manageable() []model.Category {
	var out []model.Category
	for _, c := range r.categories {
		if c.Kind() == model.KindUserDefined {
			out = append(out, c)
		}
	}
	return out
}

// Navigation returns the category names shown in navigation. The synthetic
// auto category is included only while it has a non-deleted member in images.
func (r *Registry) Navigation(images []model.Image) []string {
	var out []string
	for _, c := range r.categories {
		switch c.Kind() {
		case model.KindUserDefined:
			out = append(out, c.Name)
		case model.KindSyntheticAuto:
			if hasLiveMember(images, c.Name) {
				out = append(out, c.Name)
			}
		}
	}
	return out
}

func hasLiveMember(images []model.Image, category string) bool {
	for _, img := range images {
		if img.Category == category && !img.IsDeleted {
			return true
		}
	}
	return false
}
