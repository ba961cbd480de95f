package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/changestore/internal/config"
	"github.com/roach88/changestore/internal/dberr"
	"github.com/roach88/changestore/internal/storage"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("OPEN_FAILED", "open failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "OPEN_FAILED", resp.Error.Code)
	assert.Equal(t, "open failed", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("store deleted")
	require.NoError(t, err)
	assert.Equal(t, "store deleted\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("BLOCKED", "upgrade blocked", map[string]string{"store": "s"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [BLOCKED]: upgrade blocked")
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
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Opening %s", "projects")

			assert.Empty(t, buf.String(), "diagnostics never go to stdout")
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Opening projects")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{
			name:     "blocked",
			err:      dberr.Blocked("s", 2, storage.ErrBlocked),
			wantCode: "BLOCKED",
			wantExit: ExitFailure,
		},
		{
			name:     "batch item",
			err:      dberr.BatchItemFailed("s", "Project", "add", 1, dberr.TransactionFailed("s", "Project", "put", errors.New("x"))),
			wantCode: "BATCH_ITEM_FAILED",
			wantExit: ExitFailure,
		},
		{
			name:     "invalid argument",
			err:      dberr.InvalidArgument("s", "Project", "bad", nil),
			wantCode: "INVALID_ARGUMENT",
			wantExit: ExitCommandError,
		},
		{
			name:     "config",
			err:      fmt.Errorf("config: %w: missing store", config.ErrInvalid),
			wantCode: ErrCodeConfig,
			wantExit: ExitCommandError,
		},
		{
			name:     "argument",
			err:      argError(errors.New("not JSON")),
			wantCode: ErrCodeArgument,
			wantExit: ExitCommandError,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			wantCode: ErrCodeInternal,
			wantExit: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail(tt.err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestOutputFormatter_FailDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	_ = formatter.Fail(dberr.BatchItemFailed("s", "Project", "delete", 2, errors.New("x")))

	var resp struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "s", resp.Error.Details["store"])
	assert.Equal(t, "Project", resp.Error.Details["collection"])
	assert.Equal(t, float64(2), resp.Error.Details["item"])
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitFailure, "y", nil))))
}
