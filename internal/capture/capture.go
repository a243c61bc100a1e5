// Package capture saves images found while browsing to the store.
//
// A Saver checks a local allow-list of URLs already submitted before
// contacting the store, so repeated captures of the same image cost no
// request. The check is by URL only.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/remote"
)

// Remote is the store call used to save an image.
type Remote interface {
	SaveImage(ctx context.Context, draft remote.ImageDraft) (remote.SaveResult, error)
}

// AllowList remembers URLs that were already saved.
type AllowList interface {
	IsSaved(ctx context.Context, url string) (bool, error)
	MarkSaved(ctx context.Context, url, imageID string) error
}

// Status is the outcome of a save.
type Status int

const (
	// Saved means the store created a new image.
	Saved Status = iota
	// Duplicate means the URL was saved before, either according to the
	// allow-list or to the store.
	Duplicate
)

func (s Status) String() string {
	if s == Duplicate {
		return "duplicate"
	}
	return "saved"
}

// Result reports a save.
type Result struct {
	Status Status
	ID     string
	// Local is true when the allow-list answered without a store call.
	Local bool
}

// Saver submits drafts to the store.
type Saver struct {
	remote Remote
	allow  AllowList
	logger *slog.Logger
}

// NewSaver creates a Saver. allow may be nil to always ask the store.
func NewSaver(r Remote, allow AllowList, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{remote: r, allow: allow, logger: logger}
}

// Save submits draft. A draft without a site takes the host of its URL.
func (s *Saver) Save(ctx context.Context, draft remote.ImageDraft) (Result, error) {
	const op = "save image"
	draft.OriginalURL = strings.TrimSpace(draft.OriginalURL)
	draft.Category = strings.TrimSpace(draft.Category)

	u, err := url.Parse(draft.OriginalURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Result{}, engine.Reject(op, "", "invalid image URL %q", draft.OriginalURL)
	}
	if draft.Category == "" {
		return Result{}, engine.Reject(op, "", "category is required")
	}
	if cache.IsReserved(draft.Category) {
		return Result{}, engine.Reject(op, "", "%q is not a user category", draft.Category)
	}
	if draft.Site == "" {
		draft.Site = u.Hostname()
	}

	if s.allow != nil {
		saved, err := s.allow.IsSaved(ctx, draft.OriginalURL)
		if err != nil {
			return Result{}, fmt.Errorf("check allow-list: %w", err)
		}
		if saved {
			s.logger.Info("image already saved", "url", draft.OriginalURL, "source", "allow-list")
			return Result{Status: Duplicate, Local: true}, nil
		}
	}

	res, err := s.remote.SaveImage(ctx, draft)
	if err != nil {
		return Result{}, engine.Classify(op, "", err)
	}

	out := Result{Status: Saved, ID: res.ID}
	if res.Status == remote.SaveAlreadyExists {
		out.Status = Duplicate
		s.logger.Info("image already saved", "url", draft.OriginalURL, "source", "store")
	} else {
		s.logger.Info("image saved", "image_id", res.ID, "category", draft.Category)
	}

	if s.allow != nil {
		if err := s.allow.MarkSaved(ctx, draft.OriginalURL, res.ID); err != nil {
			s.logger.Warn("allow-list update failed", "url", draft.OriginalURL, "error", err)
		}
	}
	return out, nil
}

var resolutionRe = regexp.MustCompile(`(\d+)\s*x\s*(\d+)`)

// ParseResolution reads "W x H" from text. Unparseable input yields 0, 0.
func ParseResolution(text string) (width, height int) {
	m := resolutionRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0
	}
	w, errW := strconv.Atoi(m[1])
	h, errH := strconv.Atoi(m[2])
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}
