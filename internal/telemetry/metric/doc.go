// Package metric provides the Prometheus collectors for tokgate.
//
// All methods on *Registry are nil-safe, so components can be constructed
// without metrics in tests and tools.
package metric
