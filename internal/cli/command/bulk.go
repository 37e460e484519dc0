package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/msgvault-go/internal/bulk"
	"github.com/yndnr/msgvault-go/internal/cli/output"
	"github.com/yndnr/msgvault-go/internal/source"
	"github.com/yndnr/msgvault-go/internal/staging"
)

// BulkCommand imports many snapshots from a manifest.
func BulkCommand() *cli.Command {
	return &cli.Command{
		Name:      "bulk",
		Usage:     "Import multiple snapshots described by a manifest",
		ArgsUsage: "[snapshot-id ...]",
		Description: "The manifest is a JSON file listing snapshot " +
			"descriptors (id, location, private key, optional size estimate). " +
			"Without arguments every manifest entry is imported; arguments " +
			"restrict the run to the named ids. Already completed snapshots " +
			"are skipped.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "manifest",
				Aliases:  []string{"m"},
				Usage:    "Path to the snapshot manifest",
				Required: true,
			},
		},
		Action: runBulk,
	}
}

func runBulk(c *cli.Context) error {
	manifest, err := source.LoadManifest(c.String("manifest"))
	if err != nil {
		return err
	}

	ids := c.Args().Slice()
	if len(ids) == 0 {
		ids = manifest.IDs()
	}
	if len(ids) == 0 {
		return cli.Exit("manifest lists no snapshots", 2)
	}

	env, err := setup(c)
	if err != nil {
		return err
	}

	stg, err := staging.NewStore(env.cfg.StagingDir, env.logger)
	if err != nil {
		return err
	}
	defer stg.Close()

	orch := bulk.New(env.store, stg, env.importer(), manifest,
		source.NewFetcher(nil), env.cfg.BulkBudget, env.logger)

	progress, flush := env.progressSink(c)
	results, runErr := orch.Run(c.Context, ids, progress)
	flush()

	if env.jsonOut {
		if err := output.WriteJSON(c.App.Writer, results); err != nil {
			return err
		}
		return runErr
	}

	tbl := output.NewTable("ID", "STATUS", "MESSAGES", "ERROR")
	for _, res := range results {
		status, messages, detail := "?", "-", ""
		if res.Meta != nil {
			status = string(res.Meta.Status)
			messages = output.FormatCount(res.Meta.ProcessedMessages, res.Meta.TotalMessages)
		}
		if res.Err != nil {
			detail = output.Truncate(res.Err.Error(), 60)
		}
		tbl.AddRow(res.SnapshotID, status, messages, detail)
	}
	if err := tbl.Render(c.App.Writer); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("bulk import finished with failures: %w", runErr)
	}
	return nil
}
