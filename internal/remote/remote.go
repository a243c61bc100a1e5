// Package remote talks to the authoritative image store.
//
// Client covers bulk pulls and mutations over HTTP. WSDialer opens the live
// push channel. Response shapes follow the store's JSON contract.
package remote

import "github.com/roach88/morgisync/internal/model"

// RenameStatus is the outcome reported by a rename call.
type RenameStatus string

const (
	RenameRenamed  RenameStatus = "renamed"
	RenameMerged   RenameStatus = "merged"
	RenameConflict RenameStatus = "conflict"
)

// RenameResult is the response to a rename call.
type RenameResult struct {
	Status   RenameStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	CanMerge bool         `json:"canMerge,omitempty"`
	Old      string       `json:"old,omitempty"`
	New      string       `json:"new,omitempty"`
}

// DeleteAction tells the store what to do with a deleted category's members.
type DeleteAction string

const (
	// DeleteIfEmpty asks the store to delete only if the category is empty.
	DeleteIfEmpty    DeleteAction = ""
	DeleteImages     DeleteAction = "delete_images"
	DeleteMoveImages DeleteAction = "move_images"
)

// DeleteRequest is the body of a category delete call.
type DeleteRequest struct {
	Name   string       `json:"name"`
	Action DeleteAction `json:"action,omitempty"`
	MoveTo string       `json:"moveTo,omitempty"`
}

// DeleteStatus is the outcome reported by a delete call.
type DeleteStatus string

const (
	DeleteDone      DeleteStatus = "deleted"
	DeleteHasImages DeleteStatus = "has_images"
)

// DeleteResult is the response to a category delete call. Count is set for
// DeleteHasImages; Affected and FavoritesProtected for DeleteDone.
type DeleteResult struct {
	Status             DeleteStatus `json:"status"`
	Count              int          `json:"count,omitempty"`
	Affected           int          `json:"affected,omitempty"`
	FavoritesProtected int          `json:"favorites_protected,omitempty"`
}

// ImageDraft is a newly captured image submitted for saving.
type ImageDraft struct {
	Site        string `json:"site"`
	OriginalURL string `json:"originalUrl"`
	Category    string `json:"category"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// SaveStatus is the outcome of saving a draft.
type SaveStatus string

const (
	SaveSuccess       SaveStatus = "success"
	SaveAlreadyExists SaveStatus = "already_exists"
)

// SaveResult is the response to a save call.
type SaveResult struct {
	Status  SaveStatus `json:"status"`
	ID      string     `json:"id,omitempty"`
	Message string     `json:"message,omitempty"`
}

type categoryList struct {
	Categories []model.Category `json:"categories"`
}

type favoriteResult struct {
	ID         string `json:"id,omitempty"`
	IsFavorite bool   `json:"isFavorite"`
}

type emptyTrashResult struct {
	Removed *int   `json:"removed,omitempty"`
	Message string `json:"message,omitempty"`
}

type shieldResult struct {
	Status   string `json:"status"`
	SafePath string `json:"safe_path"`
}

type changeCategoryRequest struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Restore  bool   `json:"restore"`
}

type renameRequest struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
	Merge   bool   `json:"merge"`
}

type createRequest struct {
	Name string `json:"name"`
}
