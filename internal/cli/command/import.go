package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/msgvault-go/internal/cli/output"
	"github.com/yndnr/msgvault-go/internal/source"
)

// ImportCommand imports a single snapshot.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Decrypt one snapshot and persist its records",
		ArgsUsage: "<snapshot-id> <location>",
		Description: "Location is a local file path or an http(s) URL of the " +
			"encrypted snapshot. The private key is taken from --key-file or " +
			"--key. Re-running a completed snapshot is a no-op; an " +
			"interrupted run resumes from the last confirmed record.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key-file",
				Aliases: []string{"k"},
				Usage:   "Path to the PEM-encoded RSA private key",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "PEM-encoded RSA private key, inline",
			},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: msgvault import <snapshot-id> <location>", 2)
	}
	snapshotID, location := c.Args().Get(0), c.Args().Get(1)

	key, err := privateKey(c)
	if err != nil {
		return err
	}

	env, err := setup(c)
	if err != nil {
		return err
	}

	data, err := source.NewFetcher(nil).Fetch(c.Context, location)
	if err != nil {
		return err
	}

	progress, flush := env.progressSink(c)
	defer flush()

	meta, err := env.importer().Import(c.Context, snapshotID, data, key, progress)
	if err != nil {
		return err
	}

	if env.jsonOut {
		return output.WriteJSON(c.App.Writer, meta)
	}
	fmt.Fprintf(c.App.Writer, "snapshot %s: %d records imported\n",
		meta.ID, meta.ProcessedMessages)
	return nil
}

// privateKey resolves the key flags into PEM bytes.
func privateKey(c *cli.Context) ([]byte, error) {
	if inline := c.String("key"); inline != "" {
		return []byte(inline), nil
	}
	path := c.String("key-file")
	if path == "" {
		return nil, cli.Exit("a private key is required (--key-file or --key)", 2)
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return key, nil
}
