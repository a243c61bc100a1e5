package cache

import "github.com/roach88/morgisync/internal/model"

// Visible returns the images shown for the active category, in cache order.
//
// Trash shows deleted images only. Every other view hides deleted images;
// All shows the rest, Favorites the favorited ones, and any other name the
// images in that category.
//
// Visible is pure: the same input always yields the same sequence.
func Visible(images []model.Image, active string) []model.Image {
	out := make([]model.Image, 0, len(images))
	for _, img := range images {
		if Shows(img, active) {
			out = append(out, img)
		}
	}
	return out
}

// Shows reports whether img belongs to the view for active.
func Shows(img model.Image, active string) bool {
	if active == model.CategoryTrash {
		return img.IsDeleted
	}
	if img.IsDeleted {
		return false
	}
	switch active {
	case model.CategoryAll:
		return true
	case model.CategoryFavorites:
		return img.IsFavorite
	default:
		return img.Category == active
	}
}

// IDs returns the ids of images in order.
func IDs(images []model.Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.ID
	}
	return out
}
