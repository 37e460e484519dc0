package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/msgvault-go/internal/cli/output"
)

// ConfigCommand prints the effective configuration.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Print the effective configuration",
		Action: runConfig,
	}
}

func runConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return output.WriteJSON(c.App.Writer, cfg)
}
