// Package model defines the records mirrored from the remote image store.
//
// JSON field names follow the remote wire format exactly, including the
// historical capitalisation of SafePath and ProxyUrl.
package model

// Image is a captured image record.
//
// ID is assigned by the remote store and never changes. Width and Height are
// zero when unknown.
type Image struct {
	ID          string `json:"id"`
	Site        string `json:"site"`
	OriginalURL string `json:"originalUrl"`
	Category    string `json:"category"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	IsFavorite  bool   `json:"isFavorite"`
	IsDeleted   bool   `json:"isDeleted"`
	IsDead      bool   `json:"isDead,omitempty"`

	// IsSafe flips to true once the image is archived locally. SafePath is
	// fixed from then on.
	IsSafe   bool   `json:"isSafe"`
	SafePath string `json:"SafePath,omitempty"`

	// Proxy fallback state. Set at most once per image and only used to
	// pick a display source.
	IsCORS     bool   `json:"isCORS"`
	ProxyURL   string `json:"ProxyUrl,omitempty"`
	ProxyTried bool   `json:"proxyTried,omitempty"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Category   *string `json:"category,omitempty"`
	IsFavorite *bool   `json:"isFavorite,omitempty"`
	IsDeleted  *bool   `json:"isDeleted,omitempty"`
	IsDead     *bool   `json:"isDead,omitempty"`
	IsSafe     *bool   `json:"isSafe,omitempty"`
	SafePath   *string `json:"SafePath,omitempty"`
	IsCORS     *bool   `json:"isCORS,omitempty"`
	ProxyURL   *string `json:"ProxyUrl,omitempty"`
	ProxyTried *bool   `json:"proxyTried,omitempty"`
	Width      *int    `json:"width,omitempty"`
	Height     *int    `json:"height,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// ApplyTo merges the patch into img.
//
// The safe-archival transition is one-way: once img.IsSafe is set, IsSafe
// and SafePath are ignored. Proxy fields are ignored once ProxyTried is set.
func (p Patch) ApplyTo(img *Image) {
	if p.Category != nil {
		img.Category = *p.Category
	}
	if p.IsFavorite != nil {
		img.IsFavorite = *p.IsFavorite
	}
	if p.IsDeleted != nil {
		img.IsDeleted = *p.IsDeleted
	}
	if p.IsDead != nil {
		img.IsDead = *p.IsDead
	}
	if p.Width != nil && *p.Width >= 0 {
		img.Width = *p.Width
	}
	if p.Height != nil && *p.Height >= 0 {
		img.Height = *p.Height
	}

	if !img.IsSafe {
		if p.SafePath != nil {
			img.SafePath = *p.SafePath
		}
		if p.IsSafe != nil && *p.IsSafe {
			img.IsSafe = true
		}
	}

	if !img.ProxyTried {
		if p.ProxyURL != nil {
			img.ProxyURL = *p.ProxyURL
		}
		if p.IsCORS != nil {
			img.IsCORS = *p.IsCORS
		}
		if p.ProxyTried != nil {
			img.ProxyTried = *p.ProxyTried
		}
	}
}

// String returns a pointer to s. Used to build patches.
func String(s string) *string { return &s }

// Bool returns a pointer to b. Used to build patches.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n. Used to build patches.
func Int(n int) *int { return &n }
