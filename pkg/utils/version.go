// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "fmt"

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent is the User-Agent the Ragora client sends by default.
func UserAgent() string {
	return "ragora-go/" + Version
}

// BuildInfo renders the version triple for the version command.
func BuildInfo() string {
	return fmt.Sprintf("Version: %s\nSha: %s\nBuilt at: %s", Version, Sha, Buildtime)
}
