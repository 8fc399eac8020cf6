package scan

import (
	debugpe "debug/pe"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/findetw/internal/pe"
	"github.com/ZacharyZcR/findetw/internal/pe/petest"
)

func TestScannerSingleHit(t *testing.T) {
	pattern, raw := testPattern(t)
	path := filepath.Join(t.TempDir(), "provider.dll")
	writeImage(t, path, raw, 0x1100)

	for _, mapped := range []bool{false, true} {
		r := NewScanner(pattern, WithMapped(mapped)).Scan(path)

		require.NoError(t, r.Err)
		require.Len(t, r.Hits, 1)
		assert.Equal(t, Hit{
			Offset:      0x1100,
			Address:     0x1D00,
			Section:     ".text",
			Resolved:    true,
			Permissions: "R-X",
		}, r.Hits[0])
		assert.Equal(t, "x64 (64位)", r.Architecture)
		assert.Equal(t, ImportNo, r.Imports)
		assert.NoError(t, r.ImportErr)
	}
}

func TestScannerHeadersAndImports(t *testing.T) {
	pattern, raw := testPattern(t)
	img := petest.Standard().With(0x1100, raw)
	img.ImageBase = 0x140000000
	img.Subsystem = debugpe.IMAGE_SUBSYSTEM_NATIVE
	img.Imports = []petest.Import{
		{DLL: "ntoskrnl.exe", Functions: []string{"ExAllocatePool2", "EtwRegister"}},
	}
	path := filepath.Join(t.TempDir(), "provider.sys")
	writeFile(t, path, img.Bytes())

	r := NewScanner(pattern).Scan(path)
	require.NoError(t, r.Err)
	require.Len(t, r.Hits, 1)
	assert.Equal(t, uint64(0x1D00), r.Hits[0].Address)
	assert.Equal(t, "Native", r.Subsystem)
	assert.Equal(t, uint64(0x140000000), r.ImageBase)
	assert.Equal(t, 2, r.Sections)
	assert.Equal(t, ImportYes, r.Imports)
	assert.NoError(t, r.ImportErr)
}

func TestScannerHitsAscending(t *testing.T) {
	pattern, raw := testPattern(t)
	path := filepath.Join(t.TempDir(), "provider.sys")
	writeImage(t, path, raw, 0x2100, 0x300, 0x1100)

	r := NewScanner(pattern).Scan(path)
	require.NoError(t, r.Err)
	require.Len(t, r.Hits, 3)

	assert.Equal(t, 0x300, r.Hits[0].Offset)
	assert.False(t, r.Hits[0].Resolved, "header hit must be marked unresolved")
	assert.Equal(t, uint64(0x300), r.Hits[0].Address)
	assert.Equal(t, ".text", r.Hits[0].Section)
	assert.Empty(t, r.Hits[0].Permissions)

	assert.Equal(t, 0x1100, r.Hits[1].Offset)
	assert.Equal(t, 0x2100, r.Hits[2].Offset)
	assert.Equal(t, ".rdata", r.Hits[2].Section)
	assert.Equal(t, uint64(0x2D00), r.Hits[2].Address)

	for _, h := range r.Hits {
		assert.GreaterOrEqual(t, h.Offset, 0)
		assert.Less(t, h.Offset, int(r.Size))
	}
}

func TestScannerNoHits(t *testing.T) {
	pattern, raw := testPattern(t)
	path := filepath.Join(t.TempDir(), "clean.exe")
	writeImage(t, path, raw)

	r := NewScanner(pattern).Scan(path)
	require.NoError(t, r.Err)
	assert.Empty(t, r.Hits)
	assert.False(t, r.Failed())
}

func TestScannerFailures(t *testing.T) {
	pattern, raw := testPattern(t)
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.dll")
	// The pattern is present but the file is not an image.
	writeFile(t, corrupt, append([]byte("not a portable executable, just text......"), raw...))

	r := NewScanner(pattern).Scan(corrupt)
	assert.ErrorIs(t, r.Err, pe.ErrMalformedImage)
	assert.True(t, r.Failed())
	assert.Empty(t, r.Hits)

	r = NewScanner(pattern).Scan(filepath.Join(dir, "missing.dll"))
	assert.ErrorIs(t, r.Err, pe.ErrIOFailure)
}

func TestImportStatusText(t *testing.T) {
	tests := []struct {
		status ImportStatus
		str    string
		text   string
	}{
		{ImportYes, "是", "yes"},
		{ImportNo, "否", "no"},
		{ImportUnknown, "未知", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.str, tt.status.String())
		b, err := tt.status.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, tt.text, string(b))
	}
}
