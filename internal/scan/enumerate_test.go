package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"a.dll",
		"B.DLL",
		"nested/deeper/c.Sys",
		"nested/d.exe",
		"nested/readme.txt",
		"e.dll.bak",
		"noext",
	} {
		writeFile(t, filepath.Join(root, name), []byte("x"))
	}

	files, err := Enumerate(root, EnumerateOptions{})
	require.NoError(t, err)

	want := []string{
		filepath.Join(root, "B.DLL"),
		filepath.Join(root, "a.dll"),
		filepath.Join(root, "nested", "d.exe"),
		filepath.Join(root, "nested", "deeper", "c.Sys"),
	}
	assert.ElementsMatch(t, want, files)
	assert.IsIncreasing(t, files)
}

func TestEnumerateCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.dll"), []byte("x"))
	writeFile(t, filepath.Join(root, "b.OCX"), []byte("x"))
	writeFile(t, filepath.Join(root, "c.cpl"), []byte("x"))

	files, err := Enumerate(root, EnumerateOptions{Extensions: []string{"ocx", ".CPL"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "b.OCX"),
		filepath.Join(root, "c.cpl"),
	}, files)
}

func TestEnumerateExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.dll"), []byte("x"))
	writeFile(t, filepath.Join(root, "WinSxS", "amd64_x", "skip.dll"), []byte("x"))
	writeFile(t, filepath.Join(root, "drivers", "skip.sys"), []byte("x"))
	writeFile(t, filepath.Join(root, "drivers", "keep.exe"), []byte("x"))

	files, err := Enumerate(root, EnumerateOptions{
		Exclude: []string{"WinSxS/**", "**/*.sys"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "keep.dll"),
		filepath.Join(root, "drivers", "keep.exe"),
	}, files)
}

func TestEnumerateInvalidExclude(t *testing.T) {
	_, err := Enumerate(t.TempDir(), EnumerateOptions{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestEnumerateEmptyDirectory(t *testing.T) {
	files, err := Enumerate(t.TempDir(), EnumerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestEnumerateInaccessible(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.dll"), []byte("x"))
	writeFile(t, filepath.Join(root, "locked", "b.dll"), []byte("x"))
	writeFile(t, filepath.Join(root, "z", "c.dll"), []byte("x"))

	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	files, err := Enumerate(root, EnumerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.dll"),
		filepath.Join(root, "z", "c.dll"),
	}, files)
}

func TestEnumerateSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "real.dll")
	writeFile(t, target, []byte("x"))
	writeFile(t, filepath.Join(outside, "dir", "inner.dll"), []byte("x"))

	if err := os.Symlink(target, filepath.Join(root, "linked.dll")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "missing.dll"), filepath.Join(root, "dangling.dll")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "dir"), filepath.Join(root, "dirlink.dll")))

	files, err := Enumerate(root, EnumerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "linked.dll")}, files)
}
