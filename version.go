// Package fsassist provides the version information for fsassist.
package fsassist

// Version is the current version of fsassist.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
