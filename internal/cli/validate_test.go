package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/manifest"
)

const badManifests = `package bad

manifest: one: module: a: f: {}
manifest: two: {address: "0x2", module: b: g: {bogus: 1}}
manifest: ok: {address: "0x3", module: c: h: {}}
`

func writeManifestDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(src), 0o644))
	return dir
}

func TestValidateCommand_Valid(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "text")), harnessManifests)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 manifest(s) valid")
}

func TestValidateCommand_ValidJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "json")), harnessManifests)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Files)
	require.Len(t, resp.Data.Manifests, 1)

	fund := resp.Data.Manifests[0]
	assert.Equal(t, "fund", fund.Name)
	assert.Contains(t, fund.Address, "cafe")
	assert.Equal(t, []string{"fund::create_pool", "fund::deposit", "fund::open"}, fund.Functions)
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := writeManifestDir(t, badManifests)

	out, err := execute(t, NewValidateCommand(testOptions(t, "text")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 error(s)")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, manifest.ErrCodeAddress+": address is required")
	assert.Contains(t, out, manifest.ErrCodeUnknownField+": unknown field")
}

func TestValidateCommand_InvalidJSON(t *testing.T) {
	dir := writeManifestDir(t, badManifests)

	out, err := execute(t, NewValidateCommand(testOptions(t, "json")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, manifest.ErrCodeAddress, resp.Error.Code)

	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, "b::g.bogus", resp.Data.Errors[1].Field)
	require.Len(t, resp.Data.Manifests, 1)
	assert.Equal(t, "ok", resp.Data.Manifests[0].Name)
}

func TestValidateCommand_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		code string
	}{
		{
			name: "missing directory",
			dir:  func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") },
			code: manifest.ErrCodeNotFound,
		},
		{
			name: "no cue files",
			dir:  func(t *testing.T) string { return t.TempDir() },
			code: manifest.ErrCodeNoFiles,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewValidateCommand(testOptions(t, "text")), tt.dir(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestValidateCommand_Verbose(t *testing.T) {
	opts := testOptions(t, "text")
	opts.Verbose = true
	cmd := NewValidateCommand(opts)

	stderr := &bytes.Buffer{}
	cmd.SetErr(stderr)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{harnessManifests})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stderr.String(), "Found 1 CUE file(s)")
	assert.Contains(t, stderr.String(), "fund at ")
	assert.Contains(t, out.String(), "✓ 1 manifest(s) valid")
}
