package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"fsbridge/internal/infra/config"
)

const configKeyEnv = "FSBRIDGE_CONFIG_KEY"

func encryptCommand() *cli.Command {
	return &cli.Command{
		Name:      "encrypt",
		Usage:     "encrypt a secret for use as an enc: config value",
		ArgsUsage: "[value]",
		Description: "Reads the value from the first argument, or from the first line of stdin.\n" +
			"The passphrase comes from " + configKeyEnv + ".",
		Action: runEncrypt,
	}
}

func runEncrypt(c *cli.Context) error {
	passphrase := os.Getenv(configKeyEnv)
	if passphrase == "" {
		return cli.Exit(configKeyEnv+" is not set", 2)
	}

	value := c.Args().First()
	if value == "" {
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && line == "" {
			return cli.Exit("no value given", 2)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "enc:%s\n", enc)
	return nil
}
