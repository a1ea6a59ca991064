package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:        "pushrelay",
		Usage:       "active health-check relay for push-style monitors",
		Version:     version,
		Description: "Probes HTTP and ICMP targets and relays heartbeats to an Uptime Kuma compatible push endpoint. In server mode it also accepts heartbeats from other relays.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file (yaml, json or toml)",
				Sources: cli.EnvVars("CONFIGURATION_FILE_PATH", "RELAY_CONFIG"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c.String("config"), modeAgent|modeServer)
		},
		Commands: []*cli.Command{
			{
				Name:  "agent",
				Usage: "probe the configured monitors, no inbound port",
				Action: func(ctx context.Context, c *cli.Command) error {
					return run(ctx, c.String("config"), modeAgent)
				},
			},
			{
				Name:  "server",
				Usage: "only accept heartbeats on /api/push/{id} and relay them upstream",
				Action: func(ctx context.Context, c *cli.Command) error {
					return run(ctx, c.String("config"), modeServer)
				},
			},
		},
		Suggest: true,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
