package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/morgisync/internal/model"
)

// marshalImage converts an image to JSON TEXT for storage.
// HTML escaping is disabled so URLs are stored as the store sent them.
func marshalImage(img model.Image) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(img); err != nil {
		return "", fmt.Errorf("marshal image %s: %w", img.ID, err)
	}
	// Encoder adds a trailing newline.
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalImage parses JSON TEXT to an image.
func unmarshalImage(data string) (model.Image, error) {
	var img model.Image
	if err := json.Unmarshal([]byte(data), &img); err != nil {
		return model.Image{}, fmt.Errorf("unmarshal image: %w", err)
	}
	return img, nil
}
