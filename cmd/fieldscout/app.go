package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/config"
	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/web/server"
)

const (
	flagConfig    = "config"
	flagDebug     = "debug"
	flagDeviceDir = "device-dir"
)

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:  "fieldscout",
		Usage: "live weed detection from a field camera",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "devices",
				Usage: "list the capture devices fieldscout can see",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagDeviceDir,
						Value: device.DefaultDeviceDir,
						Usage: "directory holding video device nodes",
					},
				},
				Action: func(c *cli.Context) error {
					platform := device.NewMediaDevicesPlatform(c.String(flagDeviceDir), logger)
					registry := device.NewRegistry(platform, 0, logger.Sublogger("devices"))
					defer registry.Close()
					devices := registry.Refresh(c.Context)
					if err := registry.Err(); err != nil {
						return err
					}
					printDevices(c.App.Writer, devices, registry.Selected())
					return nil
				},
			},
			{
				Name:  "serve",
				Usage: "run the capture pipeline and its HTTP API until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load configuration from `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c.String(flagConfig))
					if err != nil {
						return err
					}
					serveLogger, err := logging.NewLoggerFromConfig("fieldscout", cfg.Log)
					if err != nil {
						return err
					}
					if c.Bool(flagDebug) {
						serveLogger.SetLevel(logging.DEBUG)
					}
					return server.Run(c.Context, cfg, serveLogger)
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema the analyzer asks the model to answer in",
				Action: func(c *cli.Context) error {
					return printSchema(c.App.Writer)
				},
			},
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path)
}

func printDevices(w io.Writer, devices []device.CaptureDevice, selected string) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "ID", "Label", "Selected"})
	for i, d := range devices {
		mark := ""
		if d.ID == selected {
			mark = "*"
		}
		t.AppendRow(table.Row{i, d.ID, d.Label, mark})
	}
	fmt.Fprintln(w, t.Render())
}

func printSchema(w io.Writer) error {
	schema, err := analyzer.ResponseSchema()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, schema, "", "  "); err != nil {
		return errors.Wrap(err, "cannot format schema")
	}
	_, err = fmt.Fprintln(w, out.String())
	return err
}
