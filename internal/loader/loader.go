// Package loader turns uploaded bytes or sample files into working tables.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/gradecast/internal/table"
)

// ErrUnsupported indicates a file format no reader accepts.
var ErrUnsupported = errors.New("unsupported file format")

// Options controls parsing.
type Options struct {
	// Delimiter for CSV. If 0, picked from the file name and header line.
	Delimiter rune
	// DecimalComma reads "3,5" as 3.5.
	DecimalComma bool
	// Sheet selects a workbook sheet by name; empty means the first sheet.
	Sheet string
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
}

// Reader parses one family of tabular formats.
type Reader interface {
	CanRead(filename string) bool
	Read(name string, data []byte, opt Options) (*table.Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
}

// Load picks a reader from the file name's extension and parses r.
func Load(name string, r io.Reader, opt Options) (*table.Table, error) {
	reader := readerFor(name)
	if reader == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	t, err := reader.Read(filepath.Base(name), buf.Bytes(), opt)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
	}
	return t, nil
}

// LoadFile reads a table from disk.
func LoadFile(path string, opt Options) (*table.Table, error) {
	if readerFor(path) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return Load(path, f, opt)
}

// Supported reports whether some reader accepts the file name.
func Supported(name string) bool { return readerFor(name) != nil }

func readerFor(name string) Reader {
	for _, r := range registry {
		if r.CanRead(name) {
			return r
		}
	}
	return nil
}
