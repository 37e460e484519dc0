// Package command defines the msgvault CLI commands.
//
// It uses urfave/cli/v2 for command parsing. Commands share one setup path:
// configuration is assembled from defaults, an optional YAML file,
// MSGVAULT_* environment variables, and flags; the record store is opened
// once per invocation and closed through the shutdown handler.
package command
