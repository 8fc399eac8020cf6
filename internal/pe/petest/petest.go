// Package petest builds minimal synthetic PE images for tests.
package petest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

const (
	peHeaderOffset = 0x40
	fileHeaderSize = 20
	sectionHdrSize = 40
	minImageSize   = 0x200
)

// Section is a section header to emit.
type Section struct {
	Name             string
	VirtualAddress   uint32
	VirtualSize      uint32
	PointerToRawData uint32
	Size             uint32
	Characteristics  uint32
}

// Import is one DLL entry of the import directory.
type Import struct {
	DLL       string
	Functions []string
}

// Image describes a synthetic image: its section table, total file size and
// byte patches written at fixed file offsets.
//
// An optional header is only emitted when ImageBase, Subsystem or Imports is
// set. Imports are written at the start of the last section.
type Image struct {
	Machine   uint16
	ImageBase uint64
	Subsystem uint16
	Imports   []Import
	Sections  []Section
	Size      int
	Patches   map[int][]byte
}

func (img Image) machine() uint16 {
	if img.Machine == 0 {
		return pe.IMAGE_FILE_MACHINE_AMD64
	}
	return img.Machine
}

func (img Image) pe32() bool {
	return img.machine() == pe.IMAGE_FILE_MACHINE_I386
}

func (img Image) hasOptionalHeader() bool {
	return img.ImageBase != 0 || img.Subsystem != 0 || len(img.Imports) > 0
}

func (img Image) optionalHeaderSize() int {
	switch {
	case !img.hasOptionalHeader():
		return 0
	case img.pe32():
		return binary.Size(pe.OptionalHeader32{})
	default:
		return binary.Size(pe.OptionalHeader64{})
	}
}

// HeaderEnd returns the first file offset past the section header table.
func (img Image) HeaderEnd() int {
	return peHeaderOffset + 4 + fileHeaderSize + img.optionalHeaderSize() + len(img.Sections)*sectionHdrSize
}

// Bytes renders the image. The result carries a DOS stub, a PE signature, a
// COFF file header, the optional header if any and the section table; the
// rest of the file is zero except for the import directory and the patches.
func (img Image) Bytes() []byte {
	var imports []byte
	var importRVA uint32
	if len(img.Imports) > 0 && len(img.Sections) > 0 {
		s := img.Sections[len(img.Sections)-1]
		importRVA = s.VirtualAddress
		imports = img.importDirectory(importRVA)
	}

	size := img.Size
	if end := img.HeaderEnd(); size < end {
		size = end
	}
	if size < minImageSize {
		size = minImageSize
	}
	for off, p := range img.Patches {
		if off+len(p) > size {
			size = off + len(p)
		}
	}
	if imports != nil {
		if end := int(img.Sections[len(img.Sections)-1].PointerToRawData) + len(imports); size < end {
			size = end
		}
	}

	var hdr bytes.Buffer
	dos := make([]byte, peHeaderOffset)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], peHeaderOffset)
	hdr.Write(dos)
	hdr.Write([]byte{'P', 'E', 0, 0})

	fh := pe.FileHeader{
		Machine:              img.machine(),
		NumberOfSections:     uint16(len(img.Sections)),
		SizeOfOptionalHeader: uint16(img.optionalHeaderSize()),
	}
	_ = binary.Write(&hdr, binary.LittleEndian, fh)
	if img.hasOptionalHeader() {
		img.writeOptionalHeader(&hdr, importRVA, uint32(len(imports)))
	}

	for _, s := range img.Sections {
		var sh pe.SectionHeader32
		copy(sh.Name[:], s.Name)
		sh.VirtualSize = s.VirtualSize
		sh.VirtualAddress = s.VirtualAddress
		sh.SizeOfRawData = s.Size
		sh.PointerToRawData = s.PointerToRawData
		sh.Characteristics = s.Characteristics
		_ = binary.Write(&hdr, binary.LittleEndian, sh)
	}

	out := make([]byte, size)
	copy(out, hdr.Bytes())
	if imports != nil {
		copy(out[img.Sections[len(img.Sections)-1].PointerToRawData:], imports)
	}
	for off, p := range img.Patches {
		copy(out[off:], p)
	}
	return out
}

func (img Image) writeOptionalHeader(buf *bytes.Buffer, importRVA, importSize uint32) {
	var dirs [16]pe.DataDirectory
	dirs[pe.IMAGE_DIRECTORY_ENTRY_IMPORT] = pe.DataDirectory{VirtualAddress: importRVA, Size: importSize}

	if img.pe32() {
		oh := pe.OptionalHeader32{
			Magic:               0x10b,
			ImageBase:           uint32(img.ImageBase),
			Subsystem:           img.Subsystem,
			NumberOfRvaAndSizes: uint32(len(dirs)),
			DataDirectory:       dirs,
		}
		_ = binary.Write(buf, binary.LittleEndian, oh)
		return
	}
	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           img.ImageBase,
		Subsystem:           img.Subsystem,
		NumberOfRvaAndSizes: uint32(len(dirs)),
		DataDirectory:       dirs,
	}
	_ = binary.Write(buf, binary.LittleEndian, oh)
}

// importDirectory lays out the descriptors, then the DLL and hint/name
// strings, then one lookup table per DLL. rva is the address of the first byte.
func (img Image) importDirectory(rva uint32) []byte {
	const descriptorSize = 20
	thunkSize := 8
	if img.pe32() {
		thunkSize = 4
	}

	blob := make([]byte, (len(img.Imports)+1)*descriptorSize)
	appendString := func(prefix int, s string) uint32 {
		off := uint32(len(blob))
		blob = append(blob, make([]byte, prefix)...)
		blob = append(blob, s...)
		blob = append(blob, 0)
		return rva + off
	}

	dllNames := make([]uint32, len(img.Imports))
	funcNames := make([][]uint32, len(img.Imports))
	for i, imp := range img.Imports {
		dllNames[i] = appendString(0, imp.DLL)
		for _, fn := range imp.Functions {
			// Two byte hint precedes the name.
			funcNames[i] = append(funcNames[i], appendString(2, fn))
		}
	}

	for i := range img.Imports {
		thunks := rva + uint32(len(blob))
		for _, name := range funcNames[i] {
			entry := make([]byte, thunkSize)
			if thunkSize == 8 {
				binary.LittleEndian.PutUint64(entry, uint64(name))
			} else {
				binary.LittleEndian.PutUint32(entry, name)
			}
			blob = append(blob, entry...)
		}
		blob = append(blob, make([]byte, thunkSize)...)

		d := blob[i*descriptorSize:]
		binary.LittleEndian.PutUint32(d[0:], thunks)
		binary.LittleEndian.PutUint32(d[12:], dllNames[i])
		binary.LittleEndian.PutUint32(d[16:], thunks)
	}
	return blob
}

// Standard returns a two-section image: .text with virtual range
// [0x1000, 0x2000) backed by file offset 0x400, and .rdata with virtual
// range [0x2000, 0x3000) backed by file offset 0x1400.
func Standard() Image {
	return Image{
		Sections: []Section{
			{
				Name:             ".text",
				VirtualAddress:   0x1000,
				VirtualSize:      0x1000,
				PointerToRawData: 0x400,
				Size:             0x1000,
				Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
			},
			{
				Name:             ".rdata",
				VirtualAddress:   0x2000,
				VirtualSize:      0x1000,
				PointerToRawData: 0x1400,
				Size:             0x1000,
				Characteristics:  pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
			},
		},
		Size:    0x2400,
		Patches: map[int][]byte{},
	}
}

// With returns a copy of img with p written at file offset off.
func (img Image) With(off int, p []byte) Image {
	patches := make(map[int][]byte, len(img.Patches)+1)
	for k, v := range img.Patches {
		patches[k] = v
	}
	patches[off] = p
	img.Patches = patches
	return img
}
