// Package version provides the build version, set at link time with
//
//	-ldflags "-X github.com/effective-security/xjwt/internal/version.version=v1.2.3 -X github.com/effective-security/xjwt/internal/version.commit=abcdef"
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

var (
	version = "v0.0.0"
	commit  = ""
)

// Info describes the build
type Info struct {
	Major  int
	Minor  int
	Patch  int
	Commit string
	Go     string
}

// Current returns the build version
func Current() Info {
	v := Info{
		Commit: commit,
		Go:     runtime.Version(),
	}
	parts := strings.SplitN(strings.TrimPrefix(version, "v"), ".", 3)
	nums := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		// drop pre-release and build suffix, e.g. 1-rc1
		if idx := strings.IndexAny(p, "-+"); idx >= 0 {
			p = p[:idx]
		}
		*nums[i], _ = strconv.Atoi(p)
	}
	return v
}

func (v Info) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Commit != "" {
		s += "-" + v.Commit
	}
	return s
}
