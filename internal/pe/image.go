// Package pe loads PE images and maps raw file offsets into their virtual address space.
package pe

import (
	"bytes"
	"debug/pe"
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Per-file error conditions. Callers match them with errors.Is.
var (
	ErrMalformedImage         = errors.New("不是有效的PE文件")
	ErrImportTableUnavailable = errors.New("无法读取导入表")
	ErrIOFailure              = errors.New("读取文件失败")
)

// Image is the full raw content of one PE file together with its parsed headers.
// An Image is owned by a single scan; call Close when done with it.
type Image struct {
	path     string
	data     []byte
	file     *pe.File
	sections []Section
	release  func() error
}

// Open reads the whole file at path into memory and parses its headers.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIOFailure, path, err)
	}

	img, err := NewImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.path = path
	return img, nil
}

// OpenMapped maps the file at path read-only instead of copying it into the heap.
// The mapping is released by Close.
func OpenMapped(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIOFailure, path, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIOFailure, path, err)
	}
	// Empty files cannot be mapped and cannot be PE images either.
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%s: %w: 文件为空", path, ErrMalformedImage)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: 映射失败: %v", ErrIOFailure, path, err)
	}

	img, err := NewImage(m)
	if err != nil {
		_ = m.Unmap()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.path = path
	img.release = m.Unmap
	return img, nil
}

// NewImage parses the headers of an in-memory image. The image must contain
// at least one section header.
func NewImage(data []byte) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}

	sections := readSections(f)
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: 没有节区表", ErrMalformedImage)
	}

	return &Image{
		data:     data,
		file:     f,
		sections: sections,
	}, nil
}

// Close releases the image data. The Image must not be used afterwards.
func (img *Image) Close() error {
	var err error
	if img.release != nil {
		err = img.release()
		img.release = nil
	}
	img.data = nil
	return err
}

// Path returns the file the image was loaded from, or "" for in-memory images.
func (img *Image) Path() string {
	return img.path
}

// Data returns the raw file content.
func (img *Image) Data() []byte {
	return img.data
}

// Size returns the file size in bytes.
func (img *Image) Size() int64 {
	return int64(len(img.data))
}

// Sections returns the section table in file order.
func (img *Image) Sections() []Section {
	return img.sections
}

// Resolve maps a raw file offset to a virtual address.
func (img *Image) Resolve(offset int) Resolution {
	// NewImage guarantees a non-empty section table, so this cannot fail.
	r, _ := ResolveOffset(img.sections, offset)
	return r
}
