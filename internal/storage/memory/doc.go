// Package memory provides in-memory storage for tokgate.
//
// It implements the service repositories using concurrent-safe data
// structures. Sessions are held in sharded maps with secondary indexes by
// token hash and by user; developers and users live behind a single
// RWMutex each, since they change rarely.
//
// Thread Safety:
//
// Session state transitions lock only the record being changed. There is no
// store-wide lock on the session path.
package memory
