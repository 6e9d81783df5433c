// Package loader reads configuration sources into nested maps.
//
// TOML and YAML files are parsed by extension, EVENTQ_* environment
// variables become dotted paths, and DeepMerge layers the results.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader reads one configuration source. A missing source yields nil, nil.
type Loader interface {
	Load() (map[string]any, error)
}

// FileSystem is the file access loaders need.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS reads from the operating system.
type OSFS struct{}

// ReadFile implements FileSystem.
func (OSFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Stat implements FileSystem.
func (OSFS) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

// ForFile returns a loader for path chosen by its extension.
func ForFile(fsys FileSystem, path string) (Loader, error) {
	if fsys == nil {
		fsys = OSFS{}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return &TOMLLoader{fs: fsys, path: path}, nil
	case ".yaml", ".yml":
		return &YAMLLoader{fs: fsys, path: path}, nil
	default:
		return nil, fmt.Errorf("loader: unsupported config format %q", ext)
	}
}

func readFile(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loader: reading %s: %w", path, err)
	}
	return data, nil
}

// ParseError reports a malformed configuration file.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("loader: parse error in %s at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("loader: parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
