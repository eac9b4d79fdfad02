package ruby

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/savechina/rv/internal/platform"
)

// Ruby is an installed, extracted Ruby tree.
type Ruby struct {
	Version Version
	Tag     platform.Tag
	Path    string
}

// Executable returns the path of the ruby binary inside the tree.
func (r Ruby) Executable() string {
	return filepath.Join(r.Path, "bin", "ruby")
}

// String returns a display name such as "ruby-3.4.5".
func (r Ruby) String() string {
	return enginePrefix + r.Version.String()
}

// InstallPath returns the directory a version is installed to under root.
func InstallPath(root string, v Version, tag platform.Tag) string {
	return filepath.Join(root, v.String(), tag.String())
}

// Discover scans the given roots for installed rubies. Roots that do not
// exist are skipped. Entries that don't look like <version>/<tag>
// directories, including in-progress staging directories, are ignored.
// The result is sorted newest first.
func Discover(roots []string) ([]Ruby, error) {
	var rubies []Ruby
	seen := make(map[string]bool)

	for _, root := range roots {
		if root == "" {
			continue
		}
		versionDirs, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read ruby dir %s: %w", root, err)
		}

		for _, vd := range versionDirs {
			if !vd.IsDir() {
				continue
			}
			v, err := ParseVersion(vd.Name())
			if err != nil {
				continue
			}

			tagDirs, err := os.ReadDir(filepath.Join(root, vd.Name()))
			if err != nil {
				return nil, fmt.Errorf("read ruby dir %s: %w", filepath.Join(root, vd.Name()), err)
			}
			for _, td := range tagDirs {
				if !td.IsDir() {
					continue
				}
				tag, err := platform.ParseTag(td.Name())
				if err != nil {
					continue
				}
				path := filepath.Join(root, vd.Name(), td.Name())
				if seen[path] {
					continue
				}
				seen[path] = true
				rubies = append(rubies, Ruby{Version: v, Tag: tag, Path: path})
			}
		}
	}

	sort.SliceStable(rubies, func(i, j int) bool {
		if c := rubies[i].Version.Compare(rubies[j].Version); c != 0 {
			return c > 0
		}
		return rubies[i].Path < rubies[j].Path
	})

	return rubies, nil
}

// Resolve picks the installed ruby for tag that best satisfies req: the
// exact version for exact requests, otherwise the highest matching version.
// It returns ErrNoMatchingRuby when nothing matches.
func Resolve(req Request, installed []Ruby, tag platform.Tag) (Ruby, error) {
	var (
		best  Ruby
		found bool
	)
	for _, r := range installed {
		if r.Tag != tag || !req.Matches(r.Version) {
			continue
		}
		if !found || r.Version.Compare(best.Version) > 0 {
			best = r
			found = true
		}
	}
	if !found {
		return Ruby{}, fmt.Errorf("%w for %s", ErrNoMatchingRuby, req)
	}
	return best, nil
}

// Filter returns the rubies matching req, preserving order.
func Filter(req Request, installed []Ruby) []Ruby {
	var out []Ruby
	for _, r := range installed {
		if req.Matches(r.Version) {
			out = append(out, r)
		}
	}
	return out
}
