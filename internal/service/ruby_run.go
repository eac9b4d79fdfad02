package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExecFunc replaces the current process. It only returns on failure.
type ExecFunc func(argv0 string, argv []string, envv []string) error

// RubyRunService runs a program with a selected ruby.
type RubyRunService struct {
	finder  *RubyFindService
	exec    ExecFunc
	environ func() []string
}

// NewRubyRunService creates a new ruby run service. A nil exec uses the
// platform's process replacement.
func NewRubyRunService(finder *RubyFindService, exec ExecFunc) *RubyRunService {
	if exec == nil {
		exec = execProcess
	}
	return &RubyRunService{finder: finder, exec: exec, environ: os.Environ}
}

// RunRequest contains parameters for the run operation.
type RunRequest struct {
	Version string
	Dir     string
	Args    []string
}

// Run execs the ruby matching Version with Args. The selected ruby's bin
// directory is put first on PATH.
func (s *RubyRunService) Run(ctx context.Context, req RunRequest) error {
	found, err := s.finder.Find(ctx, FindRequest{Request: req.Version, Dir: req.Dir})
	if err != nil {
		return err
	}

	r := found.Ruby
	exe := r.Executable()
	if _, err := os.Stat(exe); err != nil {
		return fmt.Errorf("ruby executable: %w", err)
	}

	env := withRubyEnv(s.environ(), r.Path, r.Version.String())
	argv := append([]string{exe}, req.Args...)
	if err := s.exec(exe, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", exe, err)
	}
	return nil
}

// withRubyEnv returns env with PATH, RUBY_ROOT, RUBY_ENGINE and
// RUBY_VERSION set for the ruby at root.
func withRubyEnv(env []string, root, version string) []string {
	bin := filepath.Join(root, "bin")
	path := bin
	out := make([]string, 0, len(env)+4)
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "PATH":
			if value != "" {
				path = bin + string(os.PathListSeparator) + value
			}
			continue
		case "RUBY_ROOT", "RUBY_ENGINE", "RUBY_VERSION":
			continue
		}
		out = append(out, kv)
	}
	return append(out,
		"PATH="+path,
		"RUBY_ROOT="+root,
		"RUBY_ENGINE=ruby",
		"RUBY_VERSION="+version,
	)
}
