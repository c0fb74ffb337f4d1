// Package tlsroots loads TLS material for tokgate's listeners and clients.
//
//   - roots.go: client configs trusting the system roots plus an optional CA file
//   - watcher.go: server key pair that reloads when its files change
package tlsroots
