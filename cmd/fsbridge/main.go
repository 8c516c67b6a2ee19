// Command fsbridge serves the host file commands to a front-end over a
// WebSocket gateway, as MCP tools over stdio, or as one-shot invocations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "fsbridge",
		Usage:   "host-side file bridge for a sandboxed front-end",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "fsbridge.yaml",
				Usage:   "path to a YAML or TOML config file",
				EnvVars: []string{"FSBRIDGE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logger.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			execCommand(),
			probeCommand(),
			encryptCommand(),
			versionCommand(),
		},
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Reader:    os.Stdin,
		// main prints the error and picks the exit status.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the version",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "fsbridge %s\n", version)
			return nil
		},
	}
}
