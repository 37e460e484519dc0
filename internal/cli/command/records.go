package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/msgvault-go/internal/cli/output"
	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/internal/store"
)

// RecordsCommand reads records of one snapshot in timestamp order.
func RecordsCommand() *cli.Command {
	return &cli.Command{
		Name:      "records",
		Usage:     "Show records of a snapshot in timestamp order",
		ArgsUsage: "<snapshot-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum records to return",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Records to skip",
			},
			&cli.BoolFlag{
				Name:  "desc",
				Usage: "Newest first",
			},
			&cli.BoolFlag{
				Name:  "count",
				Usage: "Print only the record count",
			},
		},
		Action: runRecords,
	}
}

func runRecords(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: msgvault records <snapshot-id>", 2)
	}
	snapshotID := c.Args().Get(0)

	env, err := setup(c)
	if err != nil {
		return err
	}

	if c.Bool("count") {
		n, err := env.store.CountRecords(c.Context, snapshotID)
		if err != nil {
			return err
		}
		if env.jsonOut {
			return output.WriteJSON(c.App.Writer, map[string]int{"count": n})
		}
		fmt.Fprintln(c.App.Writer, n)
		return nil
	}

	order := store.OrderAsc
	if c.Bool("desc") {
		order = store.OrderDesc
	}
	records, err := env.store.GetRecords(c.Context, snapshotID, store.Query{
		Offset: c.Int("offset"),
		Limit:  c.Int("limit"),
		Order:  order,
	})
	if err != nil {
		return err
	}

	return renderRecords(c, env, records)
}

// renderRecords prints records as a table or JSON, shared with search.
func renderRecords(c *cli.Context, env *appEnv, records []*domain.MessageRecord) error {
	if env.jsonOut {
		return output.WriteJSON(c.App.Writer, records)
	}

	tbl := output.NewTable("ID", "USER", "TIME", "BODY")
	for _, r := range records {
		tbl.AddRow(
			r.ID,
			r.UserID,
			output.FormatMillis(r.Timestamp),
			output.Truncate(r.Body, 60),
		)
	}
	return tbl.Render(c.App.Writer)
}
