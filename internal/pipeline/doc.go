// Package pipeline turns decrypted message records into persisted rows.
//
// It has three layers: an adaptive chunk partitioner, a fixed-size batch
// worker pool with retry-on-contention, and an Importer that drives one
// snapshot through the full import state machine (decrypt, resume
// computation, chunked persistence, durable metadata updates, progress
// reporting).
package pipeline
