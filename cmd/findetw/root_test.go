package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/findetw/internal/guid"
	"github.com/ZacharyZcR/findetw/internal/pe/petest"
	"github.com/ZacharyZcR/findetw/internal/scan"
)

const testGUID = "{FE4525E2-42DD-4583-80B1-24214BE944A2}"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeProvider(t *testing.T, path string) {
	t.Helper()
	raw, err := guid.Parse(testGUID)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, petest.Standard().With(0x1100, raw).Bytes(), 0o644))
}

func TestInvalidGUID(t *testing.T) {
	_, err := execute(t, "{BAD-GUID}", t.TempDir())
	assert.ErrorIs(t, err, guid.ErrInvalidPattern)
}

func TestInvalidSearchPath(t *testing.T) {
	_, err := execute(t, testGUID, filepath.Join(t.TempDir(), "oiwmjfwzpm.sys"))
	assert.ErrorIs(t, err, scan.ErrPathNotFound)
}

func TestInvalidGUIDCheckedFirst(t *testing.T) {
	_, err := execute(t, "{BAD-GUID}", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, guid.ErrInvalidPattern)
}

func TestMissingArguments(t *testing.T) {
	_, err := execute(t, testGUID)
	assert.Error(t, err)
}

func TestInvalidWorkers(t *testing.T) {
	_, err := execute(t, "--workers", "0", testGUID, t.TempDir())
	assert.Error(t, err)
}

func TestFindDirectory(t *testing.T) {
	root := t.TempDir()
	writeProvider(t, filepath.Join(root, "a.dll"))
	writeProvider(t, filepath.Join(root, "sub", "b.SYS"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.exe"), petest.Standard().Bytes(), 0o644))

	out, err := execute(t, "--no-color", testGUID, root)
	require.NoError(t, err)

	assert.Contains(t, out, "正在 3 个文件中搜索 "+testGUID)
	assert.Contains(t, out, filepath.Join(root, "a.dll"))
	assert.Contains(t, out, filepath.Join(root, "sub", "b.SYS"))
	assert.NotContains(t, out, "c.exe")
	assert.Contains(t, out, "总引用数: 2")
}

func TestFindSingleFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provider.dll")
	writeProvider(t, path)

	out, err := execute(t, "--json", testGUID, path)
	require.NoError(t, err)

	var report struct {
		Total   int `json:"total_references"`
		Results []struct {
			Path string `json:"path"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Total)
	require.Len(t, report.Results, 1)
	assert.Equal(t, path, report.Results[0].Path)
}

func TestFindNoHits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.dll")
	require.NoError(t, os.WriteFile(path, petest.Standard().Bytes(), 0o644))

	out, err := execute(t, "--no-color", testGUID, path)
	require.NoError(t, err)
	assert.Contains(t, out, "总引用数: 0")
	assert.NotContains(t, out, "正在")
}
