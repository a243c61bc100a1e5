package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/model"
)

func TestMarshalImage_NoHTMLEscaping(t *testing.T) {
	img := model.Image{ID: "1", OriginalURL: "https://a.org/i.jpg?x=1&y=<2>"}

	data, err := marshalImage(img)
	require.NoError(t, err)

	assert.Contains(t, data, "x=1&y=<2>")
	assert.NotContains(t, data, `\u0026`)
	assert.NotContains(t, data, "\n")
}

func TestMarshalImage_RoundTripKeepsLocalFields(t *testing.T) {
	img := model.Image{
		ID:         "1",
		Category:   "A",
		IsSafe:     true,
		SafePath:   "safe/1.jpg",
		IsCORS:     true,
		ProxyURL:   "http://127.0.0.1:8000/proxy/image?url=x",
		ProxyTried: true,
	}

	data, err := marshalImage(img)
	require.NoError(t, err)
	got, err := unmarshalImage(data)
	require.NoError(t, err)

	assert.Equal(t, img, got)
}

func TestUnmarshalImage_Invalid(t *testing.T) {
	_, err := unmarshalImage("{not json")
	assert.Error(t, err)
}
