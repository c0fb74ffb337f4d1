// Package shutdown coordinates graceful process termination.
//
// Components register a named hook as they start. On SIGINT, SIGTERM or
// cancellation of the wait context the hooks run in reverse order within a
// shared timeout:
//
//	h := shutdown.NewHandler(30*time.Second, log)
//	h.OnShutdown("storage", func(context.Context) error { return backend.Close() })
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait()
package shutdown
