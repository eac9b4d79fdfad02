package ruby

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VersionFileName is the per-project version marker.
const VersionFileName = ".ruby-version"

// ErrNoPinnedVersion is returned when no version file is found.
var ErrNoPinnedVersion = errors.New("no pinned ruby version")

// WritePin writes req to the version file in dir.
func WritePin(dir string, req Request) (string, error) {
	path := filepath.Join(dir, VersionFileName)
	if err := os.WriteFile(path, []byte(req.String()+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ReadPin looks for a version file in dir and its parents and returns the
// parsed request and the file it came from.
func ReadPin(dir string) (Request, string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return Request{}, "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	for {
		path := filepath.Join(dir, VersionFileName)
		data, err := os.ReadFile(path)
		if err == nil {
			req, err := ParseRequest(strings.TrimSpace(string(data)))
			if err != nil {
				return Request{}, path, fmt.Errorf("parse %s: %w", path, err)
			}
			return req, path, nil
		}
		if !os.IsNotExist(err) {
			return Request{}, "", fmt.Errorf("read %s: %w", path, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Request{}, "", ErrNoPinnedVersion
		}
		dir = parent
	}
}
