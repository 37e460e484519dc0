// Package shutdown provides graceful shutdown for msgvault.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Signal-cancelled contexts for in-flight imports
//   - Cleanup hook registration with a bounded drain timeout
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	ctx := h.Context(context.Background())
//	h.OnShutdown(store.Close)
//	defer h.Close()
package shutdown
