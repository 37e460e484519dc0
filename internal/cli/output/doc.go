// Package output provides terminal output formatting for the msgvault CLI.
//
// Three renderers cover the command surface:
//
//   - table.go: tabwriter-backed tables for snapshot and record listings
//   - progress.go: a single-line progress bar driven by import events
//   - json.go: indented JSON for machine consumption (--json)
package output
