package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/savechina/rv/internal/platform"
)

const (
	luaGlobalRV = "rv"
	// maxConfigSize bounds the config file read into memory.
	maxConfigSize = 1 << 20
)

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Path    string // config file, may be empty for in-memory configs
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// luaKinds lists the keys a config file may set and the Lua type each takes.
var luaKinds = map[string]lua.LValueType{
	KeyCacheDir:    lua.LTString,
	KeyNoCache:     lua.LTBool,
	KeyReleasesURL: lua.LTString,
	KeyInstallDir:  lua.LTString,
	KeyRubyDirs:    lua.LTTable,
	KeyLogLevel:    lua.LTString,
}

// parseLuaFile reads and evaluates a Lua config file.
func parseLuaFile(ctx context.Context, path string, info *platform.Info) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return nil, &ParseError{
			Path:    path,
			Message: "config file too large",
			Detail:  fmt.Sprintf("%d bytes exceeds limit of %d", len(data), maxConfigSize),
		}
	}

	values, err := parseLua(ctx, string(data), info)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return values, nil
}

// parseLua evaluates Lua code and extracts the global rv table. Platform
// info, if given, is available to the code as the `platform` table.
func parseLua(ctx context.Context, code string, info *platform.Info) (map[string]any, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if info != nil {
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(code); err != nil {
		return nil, &ParseError{
			Message: "Lua error",
			Detail:  trimTraceback(err.Error()),
		}
	}

	rvValue := L.GetGlobal(luaGlobalRV)
	if rvValue.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'rv' table",
			Detail:  fmt.Sprintf("expected table, got %s", rvValue.Type()),
		}
	}

	return extractValues(rvValue.(*lua.LTable))
}

// extractValues converts the rv table into viper-ready values. Nil values
// (from platform.when) are treated as unset.
func extractValues(table *lua.LTable) (map[string]any, error) {
	values := make(map[string]any)
	var unknown []string
	var perr *ParseError

	table.ForEach(func(key, value lua.LValue) {
		if perr != nil {
			return
		}
		name := key.String()
		want, ok := luaKinds[name]
		if !ok {
			unknown = append(unknown, name)
			return
		}
		if value.Type() == lua.LTNil {
			return
		}

		// A single string is accepted for ruby_dirs
		if name == KeyRubyDirs && value.Type() == lua.LTString {
			values[name] = []string{value.String()}
			return
		}
		if value.Type() != want {
			perr = &ParseError{
				Message: "invalid value for " + name,
				Detail:  fmt.Sprintf("expected %s, got %s", want, value.Type()),
			}
			return
		}

		switch v := value.(type) {
		case lua.LString:
			values[name] = string(v)
		case lua.LBool:
			values[name] = bool(v)
		case *lua.LTable:
			dirs, err := stringList(name, v)
			if err != nil {
				perr = err
				return
			}
			values[name] = dirs
		}
	})

	if perr != nil {
		return nil, perr
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ParseError{
			Message: "unknown config keys",
			Detail:  strings.Join(unknown, ", "),
		}
	}
	return values, nil
}

// stringList reads an array of strings in index order. Nil entries, as
// produced by platform.when, are dropped.
func stringList(name string, table *lua.LTable) ([]string, *ParseError) {
	type entry struct {
		index int
		value lua.LValue
	}
	var entries []entry
	table.ForEach(func(key, value lua.LValue) {
		if n, ok := key.(lua.LNumber); ok && value.Type() != lua.LTNil {
			entries = append(entries, entry{index: int(n), value: value})
		}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.value.Type() != lua.LTString {
			return nil, &ParseError{
				Message: "invalid value for " + name,
				Detail:  fmt.Sprintf("entry %d: expected string, got %s", e.index, e.value.Type()),
			}
		}
		out = append(out, e.value.String())
	}
	return out, nil
}

// trimTraceback drops the Lua stack traceback from an error message.
func trimTraceback(detail string) string {
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		return strings.TrimSpace(detail[:idx])
	}
	return detail
}
