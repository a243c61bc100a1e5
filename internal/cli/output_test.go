package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"id": "42"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Session)
}

func TestOutputFormatter_JSONSuccessWithSession(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "json",
		Writer:  buf,
		Session: "session-1",
	}

	require.NoError(t, formatter.Success("done"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "session-1", resp.Session)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "image 7 not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "image 7 not found", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"op": "trash"}
	err := formatter.Error("PRECONDITION_REJECTED", "image already in trash", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Image 3 moved to trash")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Image 3 moved to trash")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("REMOTE_REJECTED", "store refused the request", map[string]string{"op": "move"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [REMOTE_REJECTED]")
	assert.Contains(t, buf.String(), "store refused the request")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("REMOTE_REJECTED", "store refused the request", map[string]string{"op": "move"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [REMOTE_REJECTED]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loaded %d image(s)", 3)

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loaded 3 image(s)")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	formatter.VerboseLog("Loaded %d image(s)", 3)

	assert.Empty(t, out.String(), "json output stays clean")
	assert.Contains(t, errOut.String(), "Loaded 3 image(s)")
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status:  "ok",
		Data:    map[string]int{"trash": 2},
		Session: "s-1",
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
	assert.Equal(t, "s-1", decoded.Session)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "REMOTE_CONFLICT",
		Message: "category exists",
		Details: []string{"Art"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "REMOTE_CONFLICT", decoded.Code)
	assert.Equal(t, "category exists", decoded.Message)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad config"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("run: %w", NewExitError(ExitCommandError, "bad config")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestWrapExitError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapExitError(ExitCommandError, "failed to load", cause)

	assert.Equal(t, "failed to load: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}
