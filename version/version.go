package version

var (
	// Version can also be set through tag release at build time
	semver   = "0.1.0"
	revision = "unknown"
)

// Get return the version. Injected at build time with -ldflags when tagging a release.
func Get() string {
	return semver
}

func Commit() string {
	return revision
}
