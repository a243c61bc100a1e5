package engine

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/morgisync/internal/model"
)

// Event is one change to apply to the mirror. The set of variants is closed.
type Event interface {
	// Kind names the variant. It is the key used in the journal.
	Kind() string
	isEvent()
}

// ImageAdded inserts a newly captured image at the front. Any record with
// the same id is removed first, so re-delivery never duplicates.
type ImageAdded struct {
	Image model.Image `json:"image"`
}

// ImageUpdated merges the provided fields into an existing record.
type ImageUpdated struct {
	ID    string      `json:"id"`
	Patch model.Patch `json:"patch"`
}

// ImageRemoved deletes a record permanently.
type ImageRemoved struct {
	ID string `json:"id"`
}

// ImageTrashed marks a record deleted.
type ImageTrashed struct {
	ID string `json:"id"`
}

// FavoriteToggled sets the favorite flag to the stored value.
type FavoriteToggled struct {
	ID         string `json:"id"`
	IsFavorite bool   `json:"isFavorite"`
}

// CategoriesChanged replaces the category registry.
type CategoriesChanged struct {
	Categories []model.Category `json:"categories"`
}

// CategoryAdded appends a category created by this client.
type CategoryAdded struct {
	Category model.Category `json:"category"`
}

// TrashEmptied removes every deleted record.
type TrashEmptied struct{}

// FullReload discards session UI state. The run loop follows it with a full
// pull.
type FullReload struct {
	Reason string `json:"reason,omitempty"`
}

// Snapshot is the result of a full pull. It replaces cache and registry.
type Snapshot struct {
	Images     []model.Image    `json:"images"`
	Categories []model.Category `json:"categories"`
}

// Reconciled is the result of a missing-entity pull. It only adds.
type Reconciled struct {
	Images []model.Image `json:"images"`
}

// SyncRequested asks the run loop to pull. Full pulls replace everything;
// otherwise only missing images are added.
type SyncRequested struct {
	Full bool `json:"full"`
}

func (ImageAdded) Kind() string        { return "ImageAdded" }
func (ImageUpdated) Kind() string      { return "ImageUpdated" }
func (ImageRemoved) Kind() string      { return "ImageRemoved" }
func (ImageTrashed) Kind() string      { return "ImageTrashed" }
func (FavoriteToggled) Kind() string   { return "FavoriteToggled" }
func (CategoriesChanged) Kind() string { return "CategoriesChanged" }
func (CategoryAdded) Kind() string     { return "CategoryAdded" }
func (TrashEmptied) Kind() string      { return "TrashEmptied" }
func (FullReload) Kind() string        { return "FullReload" }
func (Snapshot) Kind() string          { return "Snapshot" }
func (Reconciled) Kind() string        { return "Reconciled" }
func (SyncRequested) Kind() string     { return "SyncRequested" }

func (ImageAdded) isEvent()        {}
func (ImageUpdated) isEvent()      {}
func (ImageRemoved) isEvent()      {}
func (ImageTrashed) isEvent()      {}
func (FavoriteToggled) isEvent()   {}
func (CategoriesChanged) isEvent() {}
func (CategoryAdded) isEvent()     {}
func (TrashEmptied) isEvent()      {}
func (FullReload) isEvent()        {}
func (Snapshot) isEvent()          {}
func (Reconciled) isEvent()        {}
func (SyncRequested) isEvent()     {}

// EncodeEvent serializes ev for the journal.
func EncodeEvent(ev Event) (kind string, payload []byte, err error) {
	payload, err = json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return ev.Kind(), payload, nil
}

// DecodeEvent restores an event written by EncodeEvent.
func DecodeEvent(kind string, payload []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch kind {
	case "ImageAdded":
		var e ImageAdded
		err = json.Unmarshal(payload, &e)
		ev = e
	case "ImageUpdated":
		var e ImageUpdated
		err = json.Unmarshal(payload, &e)
		ev = e
	case "ImageRemoved":
		var e ImageRemoved
		err = json.Unmarshal(payload, &e)
		ev = e
	case "ImageTrashed":
		var e ImageTrashed
		err = json.Unmarshal(payload, &e)
		ev = e
	case "FavoriteToggled":
		var e FavoriteToggled
		err = json.Unmarshal(payload, &e)
		ev = e
	case "CategoriesChanged":
		var e CategoriesChanged
		err = json.Unmarshal(payload, &e)
		ev = e
	case "CategoryAdded":
		var e CategoryAdded
		err = json.Unmarshal(payload, &e)
		ev = e
	case "TrashEmptied":
		ev = TrashEmptied{}
	case "FullReload":
		var e FullReload
		err = json.Unmarshal(payload, &e)
		ev = e
	case "Snapshot":
		var e Snapshot
		err = json.Unmarshal(payload, &e)
		ev = e
	case "Reconciled":
		var e Reconciled
		err = json.Unmarshal(payload, &e)
		ev = e
	case "SyncRequested":
		var e SyncRequested
		err = json.Unmarshal(payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return ev, nil
}
