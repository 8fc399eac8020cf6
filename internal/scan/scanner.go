// Package scan searches PE images for a byte pattern, one file or a whole directory tree at a time.
package scan

import (
	"fmt"

	"github.com/ZacharyZcR/findetw/internal/pe"
	"github.com/ZacharyZcR/findetw/internal/search"
)

// ImportStatus is the answer to "does the image import a registration API".
type ImportStatus int

// Import statuses.
const (
	ImportUnknown ImportStatus = iota
	ImportNo
	ImportYes
)

func (s ImportStatus) String() string {
	switch s {
	case ImportYes:
		return "是"
	case ImportNo:
		return "否"
	default:
		return "未知"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ImportStatus) MarshalText() ([]byte, error) {
	switch s {
	case ImportYes:
		return []byte("yes"), nil
	case ImportNo:
		return []byte("no"), nil
	default:
		return []byte("unknown"), nil
	}
}

// Hit is one occurrence of the pattern in a file.
type Hit struct {
	Offset  int    `json:"offset"`
	Address uint64 `json:"address"`
	Section string `json:"section,omitempty"`
	// Resolved is false when the offset lies outside every section; Address
	// and Section then hold the fallback values and are not meaningful.
	Resolved    bool   `json:"resolved"`
	Permissions string `json:"permissions,omitempty"`
}

// Result is the outcome of scanning one file.
type Result struct {
	Path         string       `json:"path"`
	Size         int64        `json:"size"`
	Architecture string       `json:"architecture,omitempty"`
	Subsystem    string       `json:"subsystem,omitempty"`
	ImageBase    uint64       `json:"image_base,omitempty"`
	Sections     int          `json:"sections,omitempty"`
	Imports      ImportStatus `json:"imports_registration"`
	// Hits are in ascending offset order.
	Hits []Hit `json:"hits,omitempty"`
	// Err is set when the file could not be scanned; Hits is then empty.
	Err error `json:"-"`
	// ImportErr is set when the import table could not be read.
	ImportErr error `json:"-"`
}

// Failed reports whether the file could not be scanned.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Scanner scans single files for one pattern.
// A Scanner is safe for concurrent use.
type Scanner struct {
	pattern *search.Pattern
	symbols []string
	mapped  bool
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithImportSymbols sets the import names that mark an image as registering providers.
func WithImportSymbols(names ...string) ScannerOption {
	return func(s *Scanner) {
		if len(names) > 0 {
			s.symbols = append([]string(nil), names...)
		}
	}
}

// WithMapped makes the scanner memory-map files instead of reading them.
func WithMapped(mapped bool) ScannerOption {
	return func(s *Scanner) {
		s.mapped = mapped
	}
}

// NewScanner creates a scanner for pattern.
func NewScanner(pattern *search.Pattern, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		pattern: pattern,
		symbols: pe.DefaultRegistrationSymbols,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan loads the file at path, searches it and resolves every hit. It never
// panics and always returns a Result; failures are reported in Result.Err.
func (s *Scanner) Scan(path string) (result Result) {
	result = Result{Path: path}

	defer func() {
		if r := recover(); r != nil {
			result.Hits = nil
			result.Err = fmt.Errorf("%s: %w: %v", path, pe.ErrMalformedImage, r)
		}
	}()

	open := pe.Open
	if s.mapped {
		open = pe.OpenMapped
	}

	img, err := open(path)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() { _ = img.Close() }()

	info := img.Info()
	result.Size = img.Size()
	result.Architecture = info.Architecture
	result.Subsystem = info.Subsystem
	result.ImageBase = info.ImageBase
	result.Sections = info.Sections
	result.Hits = s.scanImage(img)

	found, err := img.ImportsAny(s.symbols...)
	switch {
	case err != nil:
		result.Imports = ImportUnknown
		result.ImportErr = err
	case found:
		result.Imports = ImportYes
	default:
		result.Imports = ImportNo
	}

	return result
}

func (s *Scanner) scanImage(img *pe.Image) []Hit {
	offsets := s.pattern.FindAll(img.Data())
	if len(offsets) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(offsets))
	for _, off := range offsets {
		r := img.Resolve(off)
		hits = append(hits, Hit{
			Offset:      off,
			Address:     r.Address,
			Section:     r.Section,
			Resolved:    r.Resolved,
			Permissions: r.Permissions,
		})
	}
	return hits
}
