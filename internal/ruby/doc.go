// Package ruby models Ruby versions, version requests and installed Ruby
// trees, and resolves a request against what is installed locally.
//
// A request is one of three kinds:
//   - exact: "3.4.5", "3.5.0-preview1"
//   - partial: "3", "3.4", matched as a segment prefix
//   - latest: "latest" (or a bare "ruby")
//
// Any form may carry the engine prefix "ruby-". The same parsed request is
// used for local matching here and for remote resolution in package release.
//
// Installed rubies live at <root>/<version>/<tag>, one directory per
// platform tag, and are discovered by scanning the configured roots.
package ruby
