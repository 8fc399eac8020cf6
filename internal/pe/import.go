package pe

import (
	"fmt"
	"strings"
)

// Registration APIs whose presence in the import table suggests an image
// registers ETW providers rather than only referencing their GUIDs.
const (
	SymbolEventRegister = "EventRegister" // advapi32.dll / ntdll.dll, user mode
	SymbolEtwRegister   = "EtwRegister"   // ntoskrnl.exe, kernel mode
)

// DefaultRegistrationSymbols are the imports looked for when none are configured.
var DefaultRegistrationSymbols = []string{SymbolEventRegister, SymbolEtwRegister}

// SymbolSource lists imported symbols in debug/pe "Function:DLL" form.
// *debug/pe.File implements it.
type SymbolSource interface {
	ImportedSymbols() ([]string, error)
}

// ImportsAny reports whether src imports any of the named functions.
// Names are compared case-sensitively, as the Windows loader does.
func ImportsAny(src SymbolSource, names ...string) (found bool, err error) {
	// debug/pe indexes raw section data while walking the import
	// descriptors; a corrupt table must not take the caller down.
	defer func() {
		if r := recover(); r != nil {
			found = false
			err = fmt.Errorf("%w: %v", ErrImportTableUnavailable, r)
		}
	}()

	symbols, err := src.ImportedSymbols()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrImportTableUnavailable, err)
	}

	for _, symbol := range symbols {
		// Split "FunctionName:DLL.dll" -> "FunctionName"
		funcName, _, _ := strings.Cut(symbol, ":")
		for _, name := range names {
			if funcName == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// ImportsAny reports whether the image imports any of the named functions.
func (img *Image) ImportsAny(names ...string) (bool, error) {
	return ImportsAny(img.file, names...)
}
