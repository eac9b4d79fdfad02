// Package config builds the single configuration value rv runs with.
//
// Values are layered, lowest precedence first:
//   - built-in defaults (home-relative directories, the upstream releases URL)
//   - an optional Lua config file, by default ~/.config/rv/config.lua
//   - RV_* environment variables
//
// The Lua file runs in a sandboxed gopher-lua VM with a read-only
// `platform` table injected, so it can branch on the host:
//
//	rv = {
//	  install_dir = platform.when(platform.is_macos, "/opt/rubies"),
//	  ruby_dirs   = { "~/.rubies", "/opt/rubies" },
//	  no_cache    = false,
//	}
//
// Load reads the environment exactly once. Every other package receives the
// resulting Config value explicitly and never looks at the environment.
package config
