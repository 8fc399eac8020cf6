package pe

import (
	"debug/pe"
	"fmt"
)

// Info summarises the image headers shown alongside scan hits.
type Info struct {
	Architecture string
	Subsystem    string
	ImageBase    uint64
	Sections     int
}

// Info extracts header information from the image.
func (img *Image) Info() Info {
	f := img.file
	info := Info{
		Architecture: getArchitecture(f.Machine),
		Sections:     len(img.sections),
	}

	if opt, ok := f.OptionalHeader.(*pe.OptionalHeader32); ok {
		info.ImageBase = uint64(opt.ImageBase)
		info.Subsystem = getSubsystem(opt.Subsystem)
	} else if opt, ok := f.OptionalHeader.(*pe.OptionalHeader64); ok {
		info.ImageBase = opt.ImageBase
		info.Subsystem = getSubsystem(opt.Subsystem)
	}

	return info
}

func getArchitecture(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x64 (64位)"
	case pe.IMAGE_FILE_MACHINE_ARM:
		return "ARM"
	case pe.IMAGE_FILE_MACHINE_ARMNT:
		return "ARMv7"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "ARM64"
	default:
		return fmt.Sprintf("未知 (0x%X)", machine)
	}
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "Windows GUI"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}

func getSectionPermissions(c uint32) string {
	var perms [3]rune
	perms[0] = '-'
	perms[1] = '-'
	perms[2] = '-'

	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}

	return string(perms[:])
}
