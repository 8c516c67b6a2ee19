package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"fsbridge/internal/domain"
	"fsbridge/pkg/bridgeclient"
)

func execCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "run one command and print its JSON result",
		ArgsUsage: "<command> <path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "strip-bom", Usage: "drop a leading UTF-8 byte order mark (read_all_text only)"},
			&cli.StringFlag{Name: "remote", Usage: "gateway WebSocket URL; runs the command there instead of in-process"},
			&cli.StringFlag{Name: "token", Usage: "gateway auth token for --remote", EnvVars: []string{"FSBRIDGE_TOKEN"}},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "give up after this long"},
		},
		Action: runExec,
	}
}

type execParams struct {
	Name     string `json:"name"`
	StripBOM bool   `json:"strip_bom,omitempty"`
}

func runExec(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: fsbridge exec <command> <path>", 2)
	}
	name := c.Args().Get(0)
	params := execParams{Name: c.Args().Get(1), StripBOM: c.Bool("strip-bom")}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	var (
		out json.RawMessage
		err error
	)
	if remote := c.String("remote"); remote != "" {
		out, err = execRemote(ctx, remote, c.String("token"), name, params)
	} else {
		out, err = execLocal(ctx, c, name, params)
	}
	if err != nil {
		return cli.Exit(failureLine(err), 1)
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func execLocal(ctx context.Context, c *cli.Context, name string, params execParams) (json.RawMessage, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	rt, err := newRuntime(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	defer rt.Close(context.Background())

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	result, err := rt.registry.Invoke(ctx, name, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result.Value())
}

func execRemote(ctx context.Context, url, token, name string, params execParams) (json.RawMessage, error) {
	client, err := bridgeclient.Dial(ctx, url, bridgeclient.WithToken(token))
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Call(ctx, name, params)
}

// failureLine renders err as "CODE: message".
func failureLine(err error) string {
	if code := bridgeclient.CodeOf(err); code != "" {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", domain.ErrorCodeOf(err), err)
}
