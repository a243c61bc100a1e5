package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
)

func seeded() *FakeRemote {
	f := NewFakeRemote(WithSequentialIDs())
	f.Seed([]model.Image{
		{ID: "1", Category: "A", IsFavorite: true},
		{ID: "2", Category: "A"},
		{ID: "3", Category: "B"},
	}, "A", "B")
	return f
}

func TestFakeRemote_DeleteProtectsFavorites(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	res, err := f.DeleteCategory(ctx, remote.DeleteRequest{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, remote.DeleteHasImages, res.Status)
	assert.Equal(t, 2, res.Count)

	res, err = f.DeleteCategory(ctx, remote.DeleteRequest{Name: "A", Action: remote.DeleteImages})
	require.NoError(t, err)
	assert.Equal(t, remote.DeleteDone, res.Status)
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, 1, res.FavoritesProtected)

	fav, _ := f.Image("1")
	assert.Equal(t, model.CategoryAutoFavorites, fav.Category)
	assert.False(t, fav.IsDeleted)

	plain, _ := f.Image("2")
	assert.True(t, plain.IsDeleted)

	assert.Equal(t, []string{"B", model.CategoryAutoFavorites}, f.CategoryNames())
}

func TestFakeRemote_RenameConflictAndMerge(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	res, err := f.RenameCategory(ctx, "A", "B", false)
	require.NoError(t, err)
	assert.Equal(t, remote.RenameConflict, res.Status)
	assert.Equal(t, []string{"A", "B"}, f.CategoryNames())

	res, err = f.RenameCategory(ctx, "A", "B", true)
	require.NoError(t, err)
	assert.Equal(t, remote.RenameMerged, res.Status)
	assert.Equal(t, []string{"B"}, f.CategoryNames())

	for _, img := range f.Images() {
		assert.Equal(t, "B", img.Category)
	}
}

func TestFakeRemote_Rejections(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	err := f.Trash(ctx, "1")
	assert.Equal(t, 400, remote.StatusCode(err), "favorites cannot be trashed")

	require.NoError(t, f.Trash(ctx, "2"))
	_, err = f.ToggleFavorite(ctx, "2")
	assert.Equal(t, 400, remote.StatusCode(err), "trashed images cannot be favorites")

	_, err = f.CreateCategory(ctx, "b")
	assert.Equal(t, 409, remote.StatusCode(err))

	err = f.PermanentDelete(ctx, "missing")
	assert.Equal(t, 404, remote.StatusCode(err))
}

func TestFakeRemote_SaveImage(t *testing.T) {
	f := seeded()
	ctx := context.Background()
	draft := remote.ImageDraft{Site: "a.org", OriginalURL: "https://a.org/x.jpg", Category: "A"}

	res, err := f.SaveImage(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, remote.SaveSuccess, res.Status)
	assert.Equal(t, "img-1", res.ID)
	assert.Equal(t, "img-1", f.Images()[0].ID)

	res, err = f.SaveImage(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, remote.SaveAlreadyExists, res.Status)
	assert.Len(t, f.Images(), 4)
}

func TestFakeRemote_Broadcast(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	conn, err := f.Dial(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.ConnCount())

	_, err = f.ToggleFavorite(ctx, "2")
	require.NoError(t, err)

	msg, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, "FAVORITE_TOGGLED", msg.Type)
	assert.JSONEq(t, `{"id":"2","isFavorite":true}`, string(msg.Payload))

	f.DropConnections()
	assert.Equal(t, 0, f.ConnCount())
	_, err = conn.Read()
	assert.True(t, remote.IsTransport(err))
}

func TestDrain(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	conn, err := f.Dial(ctx)
	require.NoError(t, err)
	assert.Empty(t, Drain(conn), "nothing queued yet")

	require.NoError(t, f.Trash(ctx, "2"))
	require.NoError(t, f.Trash(ctx, "3"))

	msgs := Drain(conn)
	require.Len(t, msgs, 2)
	assert.Equal(t, "IMAGE_TRASHED", msgs[0].Type)
	assert.JSONEq(t, `{"id":"3"}`, string(msgs[1].Payload))
	assert.Empty(t, Drain(conn))
}

func TestFakeRemote_Down(t *testing.T) {
	f := seeded()
	f.SetDown(true)

	_, err := f.FetchImages(context.Background())
	assert.True(t, remote.IsTransport(err))
	_, err = f.Dial(context.Background())
	assert.True(t, remote.IsTransport(err))

	f.SetDown(false)
	_, err = f.FetchImages(context.Background())
	assert.NoError(t, err)
}

func TestFakeRemote_FailNext(t *testing.T) {
	f := seeded()
	f.FailNext("trash", &remote.StatusError{Op: "trash", Status: 500})

	err := f.Trash(context.Background(), "2")
	assert.Equal(t, 500, remote.StatusCode(err))
	assert.NoError(t, f.Trash(context.Background(), "2"), "failure is one-shot")
	assert.Equal(t, 2, f.CallCount("trash"))
}

func TestServer_ClientRoundTrip(t *testing.T) {
	f := seeded()
	srv := NewServer(t, f)

	c, err := remote.NewClient(srv.URL, remote.WithTimeout(5*time.Second))
	require.NoError(t, err)
	ctx := context.Background()

	images, err := c.FetchImages(ctx)
	require.NoError(t, err)
	assert.Len(t, images, 3)

	cats, err := c.FetchCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Category{{Name: "A"}, {Name: "B"}}, cats)

	err = c.Trash(ctx, "1")
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Favorites cannot be deleted", se.Detail)

	fav, err := c.ToggleFavorite(ctx, "3")
	require.NoError(t, err)
	assert.True(t, fav)

	require.NoError(t, c.ChangeCategory(ctx, "2", "B", false))
	img, _ := f.Image("2")
	assert.Equal(t, "B", img.Category)

	n, err := c.EmptyTrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, n)

	res, err := c.DeleteCategory(ctx, remote.DeleteRequest{Name: "B"})
	require.NoError(t, err)
	assert.Equal(t, remote.DeleteHasImages, res.Status)

	rn, err := c.RenameCategory(ctx, "A", "Art", false)
	require.NoError(t, err)
	assert.Equal(t, remote.RenameRenamed, rn.Status)

	cat, err := c.CreateCategory(ctx, "Nature")
	require.NoError(t, err)
	assert.Equal(t, "Nature", cat.Name)

	path, err := c.VerifyAndShield(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "safe/3", path)

	require.NoError(t, c.PermanentDelete(ctx, "2"))
	_, ok := f.Image("2")
	assert.False(t, ok)
}

func TestServer_LiveChannel(t *testing.T) {
	f := seeded()
	srv := NewServer(t, f)

	url, err := remote.Endpoints{Base: srv.URL}.LiveURL("/ws")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := remote.NewWSDialer(url).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.ConnCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.Trash(ctx, "2"))

	msg, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, "IMAGE_TRASHED", msg.Type)
	assert.JSONEq(t, `{"id":"2"}`, string(msg.Payload))
}
