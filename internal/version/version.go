// Package version carries the release version of xyzplot, reported by the
// version command and as a metrics label.
package version

// Version is overridden at build time with
//
//	go build -ldflags "-X github.com/AaronLay10/xyzplot/internal/version.Version=x.y.z"
var Version = "0.1.0"
