package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/store"
)

// journalWithTrash journals one session that loads the mirror and trashes
// image 2.
func journalWithTrash(t *testing.T) (*cliFixture, string) {
	t.Helper()
	f := newCLIFixture(t)
	r := f.run(t, "", "trash", "2")
	require.NoError(t, r.err, r.stderr)
	return f, r.session
}

func TestTraceLatestSession(t *testing.T) {
	f, session := journalWithTrash(t)

	r := f.run(t, "", "trace")
	require.NoError(t, r.err, r.stderr)

	output := r.stdout
	assert.Contains(t, output, "Session: "+session)
	assert.Contains(t, output, "[1] Snapshot")
	assert.Contains(t, output, "[2] ImageTrashed")
	assert.Contains(t, output, "Events: 2")
	assert.Contains(t, output, "  ImageTrashed: 1")
	assert.NotContains(t, output, `{"id":"2"}`, "payloads only with --verbose")
}

func TestTraceVerboseShowsPayloads(t *testing.T) {
	f, _ := journalWithTrash(t)

	r := f.run(t, "", "trace", "--verbose")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, `"2"`)
}

func TestTraceKindFilterJSON(t *testing.T) {
	f, session := journalWithTrash(t)

	var result TraceResult
	r := f.run(t, "", "trace", "--session", session, "--kind", "ImageTrashed", "--format", "json")
	require.NoError(t, r.err, r.stderr)
	resp := decodeData(t, r.stdout, &result)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, session, result.Session)
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, int64(2), result.Timeline[0].Seq)
	assert.Equal(t, "ImageTrashed", result.Timeline[0].Kind)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, map[string]int{"Snapshot": 1, "ImageTrashed": 1}, result.Kinds)
}

func TestTraceUnknownSession(t *testing.T) {
	f, _ := journalWithTrash(t)

	r := f.run(t, "", "trace", "--session", "nope")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "No events found.")
	assert.Contains(t, r.stdout, "Events: 0")
}

func TestTraceEmptyJournal(t *testing.T) {
	f := newCLIFixture(t)

	r := f.run(t, "", "trace")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "No sessions found in journal.")
}

func TestTraceJournalDisabled(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "morgisync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("journal: \"\"\n"), 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigPath: cfgPath}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no journal configured")
}

func TestTraceHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "--session")
	assert.Contains(t, output, "--kind")
}

func TestBuildTrace(t *testing.T) {
	records := []store.Record{
		{Session: "s", Seq: 1, Kind: "Snapshot", Payload: []byte(`{}`)},
		{Session: "s", Seq: 2, Kind: "ImageTrashed", Payload: []byte(`{"id":"1"}`)},
		{Session: "s", Seq: 3, Kind: "ImageTrashed", Payload: []byte(`{"id":"2"}`)},
	}

	all := buildTrace("s", records, "")
	assert.Len(t, all.Timeline, 3)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 2, all.Kinds["ImageTrashed"])

	filtered := buildTrace("s", records, "Snapshot")
	require.Len(t, filtered.Timeline, 1)
	assert.Equal(t, int64(1), filtered.Timeline[0].Seq)
	assert.Equal(t, 3, filtered.Total)
}
