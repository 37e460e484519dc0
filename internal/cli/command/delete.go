package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// DeleteCommand removes one snapshot and all its records.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a snapshot, its records, and its metadata",
		ArgsUsage: "<snapshot-id>",
		Action:    runDelete,
	}
}

func runDelete(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: msgvault delete <snapshot-id>", 2)
	}
	snapshotID := c.Args().Get(0)

	env, err := setup(c)
	if err != nil {
		return err
	}

	if err := env.store.DeleteSnapshot(c.Context, snapshotID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "snapshot %s deleted\n", snapshotID)
	return nil
}

// ClearCommand wipes the whole store.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every snapshot and record in the store",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Confirm the wipe",
			},
		},
		Action: runClear,
	}
}

func runClear(c *cli.Context) error {
	if !c.Bool("force") {
		return cli.Exit("refusing to clear the store without --force", 2)
	}

	env, err := setup(c)
	if err != nil {
		return err
	}

	if err := env.store.ClearAll(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "store cleared")
	return nil
}
