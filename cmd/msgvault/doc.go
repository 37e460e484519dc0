// Package main provides the entry point for msgvault.
//
// msgvault imports hybrid-encrypted message-history snapshots into an
// embedded record store and queries them:
//
//   - Snapshot import (single and manifest-driven bulk)
//   - Snapshot listing and record queries (ordered, searched, counted)
//   - Store maintenance (delete, clear)
//   - Configuration inspection
//
// Usage:
//
//	msgvault [command] [flags]
//	msgvault import snap-1 ./snap-1.bin --key-file key.pem
//	msgvault bulk --manifest snapshots.json
//	msgvault records snap-1 --limit 20 --desc
package main
