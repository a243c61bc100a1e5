package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/store"
)

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling
// reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startWatch runs watch against the fixture with the fake's in-process
// live channel until the returned cancel is called.
func startWatch(t *testing.T, f *cliFixture, format string, args ...string) (*syncBuffer, func() error) {
	t.Helper()
	opts := &WatchOptions{
		RootOptions: &RootOptions{
			Format:  format,
			Server:  f.srv.URL,
			Journal: f.journal,
			Session: "watch-session",
		},
		Dialer: f.fake,
	}
	cmd := newWatchCommand(opts)

	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs(args)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	require.Eventually(t, func() bool { return f.fake.ConnCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not stop")
			return nil
		}
	}
	t.Cleanup(func() { cancel() })
	return out, stop
}

func TestWatchPrintsLiveChanges(t *testing.T) {
	f := newCLIFixture(t)
	out, stop := startWatch(t, f, "text")

	require.NoError(t, f.fake.Trash(context.Background(), "2"))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ImageTrashed: All, 2 image(s), 2 in trash")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
	assert.Contains(t, out.String(), "#1 Snapshot: All, 3 image(s), 1 in trash")

	// The mirror is saved for list --offline on exit.
	st, err := store.Open(f.journal)
	require.NoError(t, err)
	defer st.Close()
	snap, err := st.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "watch-session", snap.Session)
	for _, img := range snap.Images {
		if img.ID == "2" {
			assert.True(t, img.IsDeleted)
		}
	}
}

func TestWatchJSONCategory(t *testing.T) {
	f := newCLIFixture(t)
	out, stop := startWatch(t, f, "json", "--category", "Art")

	_, err := f.fake.ToggleFavorite(context.Background(), "2")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"FavoriteToggled"`)
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	var last ViewChange
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var resp struct {
			Status string     `json:"status"`
			Data   ViewChange `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &resp), line)
		assert.Equal(t, "ok", resp.Status)
		if resp.Data.Event == "FavoriteToggled" {
			last = resp.Data
		}
	}
	assert.Equal(t, "Art", last.Active)
	require.Len(t, last.Images, 2)
	for _, row := range last.Images {
		assert.True(t, row.Favorite, "image %s", row.ID)
	}
}

func TestWatchStoreDown(t *testing.T) {
	f := newCLIFixture(t)
	f.fake.SetDown(true)

	r := f.run(t, "", "watch")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}
