package pe

import (
	"debug/pe"
	"fmt"
)

// Section describes one entry of the section header table.
type Section struct {
	Name             string
	VirtualAddress   uint32
	VirtualSize      uint32
	PointerToRawData uint32
	Size             uint32
	Characteristics  uint32
	Permissions      string
}

// Resolution is the result of mapping a raw file offset into the image's address space.
type Resolution struct {
	Offset  int
	Address uint64
	Section string
	// Resolved is false when no section contained the offset. Address is then
	// the raw offset and Section the first section's name, neither of which
	// is meaningful.
	Resolved    bool
	Permissions string
}

func readSections(f *pe.File) []Section {
	sections := make([]Section, 0, len(f.Sections))
	for _, s := range f.Sections {
		sections = append(sections, Section{
			Name:             s.Name,
			VirtualAddress:   s.VirtualAddress,
			VirtualSize:      s.VirtualSize,
			PointerToRawData: s.Offset,
			Size:             s.Size,
			Characteristics:  s.Characteristics,
			Permissions:      getSectionPermissions(s.Characteristics),
		})
	}
	return sections
}

// contains reports whether offset lies strictly inside the section's virtual range.
// The raw offset is compared against the virtual range and both bounds are
// exclusive; existing reports depend on this convention.
func (s Section) contains(offset uint64) bool {
	start := uint64(s.VirtualAddress)
	end := start + uint64(s.VirtualSize)
	return offset > start && offset < end
}

// ResolveOffset maps a raw file offset to a virtual address using the first
// section, in file order, whose virtual range strictly contains offset. The
// address is offset + VirtualAddress - PointerToRawData.
//
// When no section contains offset the raw offset is returned with the first
// section's name and Resolved set to false.
func ResolveOffset(sections []Section, offset int) (Resolution, error) {
	if len(sections) == 0 {
		return Resolution{}, fmt.Errorf("%w: 没有节区表", ErrMalformedImage)
	}
	if offset < 0 {
		return Resolution{}, fmt.Errorf("无效的文件偏移: %d", offset)
	}

	off := uint64(offset)
	for _, s := range sections {
		// A raw pointer past the mapped address would wrap; corrupt headers only.
		if s.contains(off) && off+uint64(s.VirtualAddress) >= uint64(s.PointerToRawData) {
			return Resolution{
				Offset:      offset,
				Address:     off + uint64(s.VirtualAddress) - uint64(s.PointerToRawData),
				Section:     s.Name,
				Resolved:    true,
				Permissions: s.Permissions,
			}, nil
		}
	}

	return Resolution{
		Offset:  offset,
		Address: off,
		Section: sections[0].Name,
	}, nil
}
