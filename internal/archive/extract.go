// Package archive installs Ruby release tarballs into their final
// directory atomically.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/savechina/rv/internal/config"
)

var (
	// ErrIllegalPath is returned for entries or link targets that would land
	// outside the install directory.
	ErrIllegalPath = errors.New("illegal path in archive")
	// ErrEmptyArchive is returned when an archive holds no installable entries.
	ErrEmptyArchive = errors.New("archive is empty")
)

// Error reports a failed extraction of Archive.
type Error struct {
	Archive string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor unpacks .tar.gz archives.
type Extractor struct {
	logger config.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(logger config.Logger) *Extractor {
	return &Extractor{logger: config.OrNop(logger)}
}

// Install extracts tarball into installDir. The archive's single leading
// directory is stripped. Entries land in a staging directory next to
// installDir which is renamed into place only after every entry was
// written; on failure the staging directory is removed and installDir is
// left as it was.
func (e *Extractor) Install(ctx context.Context, tarball, installDir string) error {
	installDir = filepath.Clean(installDir)
	parent := filepath.Dir(installDir)
	_, statErr := os.Stat(parent)
	createdParent := os.IsNotExist(statErr)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return &Error{Archive: tarball, Err: fmt.Errorf("create parent dir: %w", err)}
	}

	staging := filepath.Join(parent, "."+filepath.Base(installDir)+".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0755); err != nil {
		return &Error{Archive: tarball, Err: fmt.Errorf("create staging dir: %w", err)}
	}
	e.logger.Debug("extracting archive", "archive", tarball, "staging", staging)

	if err := e.installStaged(ctx, tarball, staging, installDir); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			e.logger.Warn("remove staging dir", "path", staging, "error", rmErr)
		}
		if createdParent {
			os.Remove(parent)
		}
		return &Error{Archive: tarball, Err: err}
	}
	return nil
}

func (e *Extractor) installStaged(ctx context.Context, tarball, staging, installDir string) error {
	n, err := e.extract(ctx, tarball, staging)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEmptyArchive
	}
	return e.promote(staging, installDir)
}

// promote renames staging to installDir, replacing any existing tree.
func (e *Extractor) promote(staging, installDir string) error {
	if _, err := os.Lstat(installDir); os.IsNotExist(err) {
		if err := os.Rename(staging, installDir); err != nil {
			return fmt.Errorf("move into place: %w", err)
		}
		return nil
	}

	aside := filepath.Join(filepath.Dir(installDir), "."+filepath.Base(installDir)+".old-"+uuid.NewString())
	if err := os.Rename(installDir, aside); err != nil {
		return fmt.Errorf("move existing install aside: %w", err)
	}
	if err := os.Rename(staging, installDir); err != nil {
		// Put the previous install back
		if restoreErr := os.Rename(aside, installDir); restoreErr != nil {
			e.logger.Error("restore previous install", "path", installDir, "error", restoreErr)
		}
		return fmt.Errorf("move into place: %w", err)
	}
	if err := os.RemoveAll(aside); err != nil {
		e.logger.Warn("remove previous install", "path", aside, "error", err)
	}
	e.logger.Debug("replaced existing install", "path", installDir)
	return nil
}

// extract writes the archive entries below dest and returns how many were
// written.
func (e *Extractor) extract(ctx context.Context, tarball, dest string) (int, error) {
	archiveFile, err := os.Open(tarball)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return 0, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	// Symlinked temp dirs (macOS /var) must not count as escapes
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return 0, fmt.Errorf("resolve staging dir: %w", err)
	}

	tarReader := tar.NewReader(gzipReader)
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("read tar header: %w", err)
		}

		rel, ok, err := stripComponent(header.Name)
		if err != nil {
			return written, err
		}
		if !ok {
			continue
		}
		target := filepath.Join(root, rel)

		wrote, err := e.writeEntry(tarReader, header, root, target)
		if err != nil {
			return written, err
		}
		if wrote {
			written++
		}
	}

	return written, nil
}

func (e *Extractor) writeEntry(r io.Reader, header *tar.Header, root, target string) (bool, error) {
	switch header.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, dirMode(header)); err != nil {
			return false, fmt.Errorf("create directory %s: %w", target, err)
		}
		if err := checkInside(root, target); err != nil {
			return false, fmt.Errorf("%w: %s", err, header.Name)
		}
		return true, nil

	case tar.TypeReg:
		if err := prepareParent(root, target); err != nil {
			return false, fmt.Errorf("%w: %s", err, header.Name)
		}
		outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, header.FileInfo().Mode().Perm())
		if err != nil {
			return false, fmt.Errorf("create file %s: %w", target, err)
		}
		if _, err := io.Copy(outFile, r); err != nil {
			outFile.Close()
			return false, fmt.Errorf("write file %s: %w", target, err)
		}
		if err := outFile.Close(); err != nil {
			return false, fmt.Errorf("close file %s: %w", target, err)
		}
		// Mode on create is subject to umask
		if err := os.Chmod(target, header.FileInfo().Mode().Perm()); err != nil {
			return false, fmt.Errorf("chmod %s: %w", target, err)
		}
		return true, nil

	case tar.TypeSymlink:
		if err := prepareParent(root, target); err != nil {
			return false, fmt.Errorf("%w: %s", err, header.Name)
		}
		if filepath.IsAbs(header.Linkname) {
			return false, fmt.Errorf("%w: %s -> %s", ErrIllegalPath, header.Name, header.Linkname)
		}
		parent, err := filepath.EvalSymlinks(filepath.Dir(target))
		if err != nil {
			return false, fmt.Errorf("resolve %s: %w", header.Name, err)
		}
		if !within(root, filepath.Join(parent, filepath.FromSlash(header.Linkname))) {
			return false, fmt.Errorf("%w: %s -> %s", ErrIllegalPath, header.Name, header.Linkname)
		}
		if err := os.Symlink(header.Linkname, target); err != nil {
			return false, fmt.Errorf("create symlink %s: %w", target, err)
		}
		return true, nil

	case tar.TypeLink:
		if err := prepareParent(root, target); err != nil {
			return false, fmt.Errorf("%w: %s", err, header.Name)
		}
		relLink, ok, err := stripComponent(header.Linkname)
		if err != nil || !ok {
			return false, fmt.Errorf("%w: %s => %s", ErrIllegalPath, header.Name, header.Linkname)
		}
		source := filepath.Join(root, relLink)
		if err := checkInside(root, filepath.Dir(source)); err != nil {
			return false, fmt.Errorf("%w: %s => %s", err, header.Name, header.Linkname)
		}
		if err := os.Link(source, target); err != nil {
			return false, fmt.Errorf("create hard link %s: %w", target, err)
		}
		return true, nil

	default:
		// Skip other types (char devices, block devices, etc.)
		e.logger.Debug("skipping archive entry", "name", header.Name, "type", string(header.Typeflag))
		return false, nil
	}
}

// stripComponent drops the leading directory of an archive entry name. It
// reports false for the leading directory itself.
func stripComponent(name string) (string, bool, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", false, fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}
	_, rest, found := strings.Cut(clean, "/")
	if !found {
		return "", false, nil
	}
	return filepath.FromSlash(rest), true, nil
}

// prepareParent creates the parent of target and verifies it resolves inside root.
// An existing entry at target is replaced.
func prepareParent(root, target string) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := checkInside(root, dir); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// checkInside resolves symlinks in p and requires the result to stay below root.
func checkInside(root, p string) error {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return err
	}
	if !within(root, resolved) {
		return ErrIllegalPath
	}
	return nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

func dirMode(header *tar.Header) os.FileMode {
	// Directories stay writable so later entries can be created
	return header.FileInfo().Mode().Perm() | 0700
}
