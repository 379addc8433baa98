// ABOUTME: Version information for WSAudio binaries
// ABOUTME: Version is overridden at build time via -ldflags
package version

// Version is the release version, set with -ldflags "-X .../internal/version.Version=..."
var Version = "0.3.0"

const (
	// Product is reported to relays in the client hello
	Product = "WSAudio Player"

	// Manufacturer identifies the software vendor
	Manufacturer = "WSAudio"
)

// UserAgent returns the string sent in the client hello
func UserAgent() string {
	return Product + "/" + Version
}
