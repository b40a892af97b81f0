// Package compileinfo reports which build of the pipeline produced an
// artifact.
package compileinfo

import (
	"fmt"
	"os"
	"runtime/debug"
)

type CompileInfo struct {
	Package    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " (with uncommitted changes)"
	}

	return fmt.Sprintf("%s built with %s from commit %s of %s%s", c.Package, c.GoVersion, c.Revision(), c.CommitTime, mod)
}

// Revision is the VCS commit of the build, suffixed with +dirty for a
// modified tree, or "unknown" when the binary carries no VCS stamp.
func (c CompileInfo) Revision() string {
	if c.Commit == "" {
		return "unknown"
	}
	if c.Modified {
		return c.Commit + "+dirty"
	}
	return c.Commit
}

func Get() CompileInfo {
	out := CompileInfo{}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = bi.GoVersion
	out.Package = bi.Path
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

func PrintToStdErr() {
	fmt.Fprintf(os.Stderr, "%s\n", Get())
}
