package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/msgvault-go/internal/cli/output"
)

// ListCommand lists snapshot metadata.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List imported snapshots",
		Action: runList,
	}
}

func runList(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}

	metas, err := env.store.ListMetadata(c.Context)
	if err != nil {
		return err
	}

	if env.jsonOut {
		return output.WriteJSON(c.App.Writer, metas)
	}

	tbl := output.NewTable("ID", "STATUS", "MESSAGES", "FIRST", "LAST", "ERROR")
	for _, m := range metas {
		tbl.AddRow(
			m.ID,
			string(m.Status),
			output.FormatCount(m.ProcessedMessages, m.TotalMessages),
			output.FormatMillis(m.FirstMessageAt),
			output.FormatMillis(m.LastMessageAt),
			output.Truncate(m.Error, 50),
		)
	}
	return tbl.Render(c.App.Writer)
}
