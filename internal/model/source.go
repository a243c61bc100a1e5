package model

// SourceKind identifies where an image is displayed from.
type SourceKind int

const (
	// SourceOrigin is the original remote URL.
	SourceOrigin SourceKind = iota + 1
	// SourceRelay is the proxy relay address used after a CORS failure.
	SourceRelay
	// SourceArchived is the locally archived file.
	SourceArchived
)

func (k SourceKind) String() string {
	switch k {
	case SourceOrigin:
		return "origin"
	case SourceRelay:
		return "relay"
	case SourceArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Locator is the single display source chosen for an image. Ref holds the
// archive path for SourceArchived and a URL otherwise.
type Locator struct {
	Kind SourceKind
	Ref  string
}

// Resolve picks the display source for img.
//
// Order is fixed: archived file, then proxy relay, then the original URL.
// Once IsSafe is set the archived file always wins.
func Resolve(img Image) Locator {
	if img.IsSafe && img.SafePath != "" {
		return Locator{Kind: SourceArchived, Ref: img.SafePath}
	}
	if img.ProxyTried && img.ProxyURL != "" {
		return Locator{Kind: SourceRelay, Ref: img.ProxyURL}
	}
	return Locator{Kind: SourceOrigin, Ref: img.OriginalURL}
}
