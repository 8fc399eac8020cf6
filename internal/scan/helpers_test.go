package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/findetw/internal/guid"
	"github.com/ZacharyZcR/findetw/internal/pe/petest"
	"github.com/ZacharyZcR/findetw/internal/search"
)

const testGUID = "{F4E1897C-BB5D-5668-F1D8-040F4D8DD344}"

func testPattern(t *testing.T) (*search.Pattern, []byte) {
	t.Helper()
	b, err := guid.Parse(testGUID)
	require.NoError(t, err)
	p, err := search.New(b)
	require.NoError(t, err)
	return p, b
}

// writeImage writes a synthetic image with the pattern at each offset.
func writeImage(t *testing.T, path string, pattern []byte, offsets ...int) {
	t.Helper()
	img := petest.Standard()
	for _, off := range offsets {
		img = img.With(off, pattern)
	}
	writeFile(t, path, img.Bytes())
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
