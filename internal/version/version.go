// Package version exposes build information injected through ldflags:
//
//	go build -ldflags "-X system_bridge/internal/version.version=4.1.0"
package version

//nolint:gochecknoglobals // set through ldflags
var (
	version = "dev"
	buildID = "dev"
)

func GetVersion() string {
	return version
}

func GetBuildID() string {
	return buildID
}

// GetFullVersion returns version with build ID.
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}
