// Package version reports build metadata for logs and the health endpoint.
package version

import "runtime/debug"

// AppName identifies the service in logs and version strings.
const AppName = "clinscribe"

// commit may be injected with -ldflags "-X …/pkg/version.commit=<sha>" for
// container builds without VCS metadata.
var commit string

// GitCommit is the short revision the binary was built from, or "dev" when
// neither an injected commit nor VCS build info is available.
var GitCommit = resolveCommit()

func resolveCommit() string {
	rev := commit
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					rev = s.Value
					break
				}
			}
		}
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return rev
}

// Full returns "clinscribe/<commit>" for logging and user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit
}
