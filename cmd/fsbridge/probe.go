package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"fsbridge/pkg/bridgeclient"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "wait until a gateway answers its health check",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "override probe.url"},
			&cli.IntFlag{Name: "attempts", Usage: "override probe.attempts"},
			&cli.DurationFlag{Name: "interval", Usage: "override probe.interval"},
		},
		Action: runProbe,
	}
}

func runProbe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	p := cfg.Probe
	if c.IsSet("url") {
		p.URL = c.String("url")
	}
	if c.IsSet("attempts") {
		p.Attempts = c.Int("attempts")
	}
	if c.IsSet("interval") {
		p.Interval = c.Duration("interval")
	}

	if err := bridgeclient.WaitUntilReady(c.Context, p.URL, p.Attempts, p.Interval); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "ready: %s\n", p.URL)
	return nil
}
