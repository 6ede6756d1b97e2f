// Package version carries the build identity stamped into logs and
// outgoing requests.
package version

// Version is the release version of the coordinator. Overridden at build
// time with -ldflags "-X github.com/avridey/outrigger/internal/version.Version=...".
var Version = "0.3.0"

// UserAgent identifies the coordinator on outgoing HTTP requests.
func UserAgent() string {
	return "outrigger v" + Version
}
