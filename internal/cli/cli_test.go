package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/testutil"
)

// cliFixture serves a fake store over HTTP and keeps a journal in a temp
// dir. Each run gets its own session id.
type cliFixture struct {
	fake    *testutil.FakeRemote
	srv     *httptest.Server
	journal string
	runs    int
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	fake := testutil.NewFakeRemote(testutil.WithSequentialIDs())
	fake.Seed(fixtureImages(), "Art", "Travel")
	return &cliFixture{
		fake:    fake,
		srv:     testutil.NewServer(t, fake),
		journal: filepath.Join(t.TempDir(), "journal.db"),
	}
}

func fixtureImages() []model.Image {
	return []model.Image{
		{ID: "1", Category: "Art", Site: "a.org", OriginalURL: "https://a.org/1.jpg", IsFavorite: true},
		{ID: "2", Category: "Art", Site: "a.org", OriginalURL: "https://a.org/2.jpg"},
		{ID: "3", Category: "Travel", Site: "b.org", OriginalURL: "https://b.org/3.jpg"},
		{ID: "4", Category: "Travel", Site: "b.org", OriginalURL: "https://b.org/4.jpg", IsDeleted: true},
	}
}

type cliRun struct {
	stdout  string
	stderr  string
	session string
	err     error
}

// run executes the root command with the fixture's server and journal.
// in, when non-empty, answers prompts.
func (f *cliFixture) run(t *testing.T, in string, args ...string) cliRun {
	t.Helper()
	return f.runContext(t, context.Background(), in, args...)
}

func (f *cliFixture) runContext(t *testing.T, ctx context.Context, in string, args ...string) cliRun {
	t.Helper()
	f.runs++
	opts := &RootOptions{Session: fmt.Sprintf("session-%d", f.runs)}
	if in != "" {
		opts.In = strings.NewReader(in)
	}

	cmd := newRootCommand(opts)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	// Never a terminal, so unanswered prompts fail.
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--server", f.srv.URL, "--journal", f.journal}, args...))

	err := cmd.ExecuteContext(ctx)
	return cliRun{stdout: stdout.String(), stderr: stderr.String(), session: opts.Session, err: err}
}

// decodeData unmarshals the data of a JSON success response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp.CLIResponse
}
