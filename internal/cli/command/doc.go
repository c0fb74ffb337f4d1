// Package command provides the tokgate-cli command tree.
//
//   - root.go: App, global flags, client construction and rendering
//   - developer.go: developer create/list/disable/enable
//   - session.go: session list/revoke and user revoke-all
//   - key.go: key check against the internal validate-key endpoint
//   - health.go: health
//
// Every command writes to the app's Writer so output can be captured.
package command
