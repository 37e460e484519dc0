package command

import (
	"github.com/urfave/cli/v2"
)

// SearchCommand searches record bodies of one snapshot.
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search record bodies for a substring (case-insensitive)",
		ArgsUsage: "<snapshot-id> <substring>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum matches to return",
				Value:   50,
			},
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: msgvault search <snapshot-id> <substring>", 2)
	}
	snapshotID, substring := c.Args().Get(0), c.Args().Get(1)

	env, err := setup(c)
	if err != nil {
		return err
	}

	records, err := env.store.SearchRecords(c.Context, snapshotID, substring, c.Int("limit"))
	if err != nil {
		return err
	}
	return renderRecords(c, env, records)
}
