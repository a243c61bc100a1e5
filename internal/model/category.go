package model

// System category names. They are views, not stored categories.
const (
	CategoryAll       = "All"
	CategoryFavorites = "Favorites"
	CategoryTrash     = "Trash"
)

// CategoryAutoFavorites is created by the remote store when a category is
// deleted and its favorited members are kept.
const CategoryAutoFavorites = "Uncategorized Favorites"

// Category is a named bucket. Names are stored case-sensitively.
type Category struct {
	Name string `json:"name"`
}

// CategoryKind classifies a category name.
type CategoryKind int

const (
	KindUserDefined CategoryKind = iota + 1
	KindSystem
	KindSyntheticAuto
)

// String returns the kind name used in logs and CLI output.
func (k CategoryKind) String() string {
	switch k {
	case KindUserDefined:
		return "user-defined"
	case KindSystem:
		return "system"
	case KindSyntheticAuto:
		return "synthetic-auto"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of a category name.
func KindOf(name string) CategoryKind {
	switch name {
	case CategoryAll, CategoryFavorites, CategoryTrash:
		return KindSystem
	case CategoryAutoFavorites:
		return KindSyntheticAuto
	default:
		return KindUserDefined
	}
}

// Kind returns the kind of c.
func (c Category) Kind() CategoryKind {
	return KindOf(c.Name)
}
