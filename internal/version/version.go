// Package version carries build information set through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/toricodesthings/pdfmd/internal/version.GitRelease=v1.2.0"
package version

import "runtime"

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
)
