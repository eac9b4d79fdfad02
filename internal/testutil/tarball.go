package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Entry is one member of a test archive. Type defaults to a regular file.
type Entry struct {
	Name     string
	Body     string
	Mode     int64
	Type     byte
	Linkname string
}

// TarGz builds a gzip-compressed tar archive in memory.
func TarGz(t *testing.T, entries []Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		header := &tar.Header{
			Name:     e.Name,
			Mode:     e.Mode,
			Typeflag: e.Type,
			Linkname: e.Linkname,
		}
		if header.Typeflag == 0 {
			header.Typeflag = tar.TypeReg
		}
		if header.Mode == 0 {
			header.Mode = 0644
			if header.Typeflag == tar.TypeDir {
				header.Mode = 0755
			}
		}
		if header.Typeflag == tar.TypeReg {
			header.Size = int64(len(e.Body))
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if header.Size > 0 {
			if _, err := tarWriter.Write([]byte(e.Body)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}

	if err := tarWriter.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// RubyEntries returns the layout of a portable Ruby release archive.
func RubyEntries(version string) []Entry {
	return []Entry{
		{Name: "portable-ruby/", Type: tar.TypeDir},
		{Name: "portable-ruby/bin/", Type: tar.TypeDir},
		{Name: "portable-ruby/bin/ruby", Body: "#!/bin/sh\necho ruby " + version + "\n", Mode: 0755},
		{Name: "portable-ruby/bin/irb", Type: tar.TypeSymlink, Linkname: "ruby"},
		{Name: "portable-ruby/lib/ruby/" + version + "/version.rb", Body: "RUBY_VERSION = \"" + version + "\"\n"},
	}
}

// RubyTarball builds a portable Ruby release archive for version.
func RubyTarball(t *testing.T, version string) []byte {
	t.Helper()
	return TarGz(t, RubyEntries(version))
}

// WriteFile writes data to name inside dir and returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
