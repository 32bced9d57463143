// Package version reports build information for the mmrunner binary.
//
//	go build -ldflags "-X github.com/kbukum/mmrunner/version.Version=1.2.0" ./cmd/mmrunner
package version
