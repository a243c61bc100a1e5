package engine

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
)

// Push message types sent by the store.
const (
	MsgNewImage          = "NEW_IMAGE"
	MsgImageUpdated      = "IMAGE_UPDATED"
	MsgImageRemoved      = "IMAGE_REMOVED"
	MsgImageTrashed      = "IMAGE_TRASHED"
	MsgFavoriteToggled   = "FAVORITE_TOGGLED"
	MsgCategoriesUpdated = "CATEGORIES_UPDATED"
	MsgTrashEmptied      = "TRASH_EMPTIED"
	MsgReloadData        = "RELOAD_DATA"
)

// UnknownMessageError is a push message of a type this client does not
// handle.
type UnknownMessageError struct {
	Type string
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown live message type %q", e.Type)
}

type idPayload struct {
	ID string `json:"id"`
}

// DecodeMessage turns a push message into an event.
func DecodeMessage(msg remote.Message) (Event, error) {
	switch msg.Type {
	case MsgNewImage:
		var img model.Image
		if err := unmarshalPayload(msg, &img); err != nil {
			return nil, err
		}
		if img.ID == "" {
			return nil, fmt.Errorf("%s: missing id", msg.Type)
		}
		return ImageAdded{Image: img}, nil

	case MsgImageUpdated:
		var p struct {
			ID string `json:"id"`
			model.Patch
		}
		if err := unmarshalPayload(msg, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%s: missing id", msg.Type)
		}
		return ImageUpdated{ID: p.ID, Patch: p.Patch}, nil

	case MsgImageRemoved:
		id, err := decodeID(msg)
		if err != nil {
			return nil, err
		}
		return ImageRemoved{ID: id}, nil

	case MsgImageTrashed:
		id, err := decodeID(msg)
		if err != nil {
			return nil, err
		}
		return ImageTrashed{ID: id}, nil

	case MsgFavoriteToggled:
		var p FavoriteToggled
		if err := unmarshalPayload(msg, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%s: missing id", msg.Type)
		}
		return p, nil

	case MsgCategoriesUpdated:
		var list []model.Category
		if err := unmarshalPayload(msg, &list); err != nil {
			return nil, err
		}
		return CategoriesChanged{Categories: list}, nil

	case MsgTrashEmptied:
		return TrashEmptied{}, nil

	case MsgReloadData:
		return FullReload{Reason: msg.Message}, nil

	default:
		return nil, &UnknownMessageError{Type: msg.Type}
	}
}

func decodeID(msg remote.Message) (string, error) {
	var p idPayload
	if err := unmarshalPayload(msg, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", fmt.Errorf("%s: missing id", msg.Type)
	}
	return p.ID, nil
}

func unmarshalPayload(msg remote.Message, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", msg.Type, err)
	}
	return nil
}
