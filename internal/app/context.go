package app

import "github.com/tphakala/playrec/internal/buildinfo"

// Context is shared by the CLI commands. Runner is nil until the root command has loaded
// the configuration, and stays nil for commands that skip it.
type Context struct {
	Build      *buildinfo.Context
	ConfigFile string
	Runner     *Runner
}

// NewContext returns a Context for build with no runner yet.
func NewContext(build *buildinfo.Context) *Context {
	if build == nil {
		build = buildinfo.New("", "")
	}
	return &Context{Build: build}
}
