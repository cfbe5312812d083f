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

func TestOutputFormatter_Success(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{"json", "json", func(t *testing.T, out string) {
			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "ok", resp.Status)
			assert.Equal(t, map[string]any{"entries": float64(2)}, resp.Data)
			assert.Nil(t, resp.Error)
		}},
		{"text", "text", func(t *testing.T, out string) {
			assert.Equal(t, "map[entries:2]\n", out)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf}
			require.NoError(t, f.Success(map[string]int{"entries": 2}))
			tt.check(t, buf.String())
		})
	}
}

func TestOutputFormatter_Error(t *testing.T) {
	details := ValidationFailure{File: "optisync.cue", Line: 3, Column: 7}

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(ErrCodeConfigInvalid, "config invalid", details))

		var resp struct {
			Status string `json:"status"`
			Error  struct {
				Code    string            `json:"code"`
				Message string            `json:"message"`
				Details ValidationFailure `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ErrCodeConfigInvalid, resp.Error.Code)
		assert.Equal(t, details, resp.Error.Details)
	})

	t.Run("text hides details unless verbose", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.Error(ErrCodeNotFound, "database not found", details))
		assert.Equal(t, "Error [E002]: database not found\n", buf.String())

		buf.Reset()
		f.Verbose = true
		require.NoError(t, f.Error(ErrCodeNotFound, "database not found", details))
		assert.Contains(t, buf.String(), "Details: {optisync.cue 3 7}")
	})

	t.Run("json omits empty details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(ErrCodeGeneric, "boom", nil))
		assert.NotContains(t, buf.String(), "details")
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	f.VerboseLog("Opening %s", "db")
	assert.Empty(t, errOut.String(), "quiet unless verbose")

	f.Verbose = true
	f.VerboseLog("Opening %s", "db")
	assert.Empty(t, out.String(), "diagnostics must not corrupt JSON output")
	assert.Equal(t, "Opening db\n", errOut.String())

	noErr := &OutputFormatter{Writer: out, Verbose: true}
	noErr.VerboseLog("fallback")
	assert.Equal(t, "fallback\n", out.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "failed", errors.New("cause")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, "outer: failed: cause", wrapped.Error())
}
