// Package buildinfo reports the version of the running binary.
//
//	go build -ldflags "-X github.com/yndnr/tokgate/internal/infra/buildinfo.Version=v1.0.0"
//
// Commit and build time come from the embedded VCS stamp unless set the
// same way.
package buildinfo
