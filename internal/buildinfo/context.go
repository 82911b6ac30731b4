// Package buildinfo contains build-time metadata separate from user configuration.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
// Version and BuildDate are injected with -ldflags at build time.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// New returns a Context, filling an empty version from the module build information.
func New(version, buildDate string) *Context {
	if version == "" {
		version = "dev"
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			version = bi.Main.Version
		}
	}
	if buildDate == "" {
		buildDate = "unknown"
	}
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the build version string.
func (c *Context) GetVersion() string { return c.Version }

// GetBuildDate returns the build date string.
func (c *Context) GetBuildDate() string { return c.BuildDate }

// Release is the release identifier reported to error telemetry.
func (c *Context) Release() string {
	return "playrec@" + c.Version
}

// String returns a one-line version banner.
func (c *Context) String() string {
	return "playrec " + c.Version + " (built " + c.BuildDate + ", " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
