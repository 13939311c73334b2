// Package cli contains the livevision command line app.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig        = "config"
	flagDebug         = "debug"
	flagDuration      = "duration"
	flagStatsInterval = "stats-interval"
	flagQuiet         = "quiet"
)

var configFlag = &cli.StringFlag{
	Name:     flagConfig,
	Aliases:  []string{"c"},
	Usage:    "load configuration from `FILE`",
	Required: true,
}

var app = &cli.App{
	Name:            "livevision",
	Usage:           "run live inference over camera frames",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "run",
			Usage: "run the pipeline described by a config file until interrupted or its sources are exhausted",
			Flags: []cli.Flag{
				configFlag,
				&cli.DurationFlag{
					Name:  flagDuration,
					Usage: "stop after this long, zero runs until interrupted",
				},
				&cli.DurationFlag{
					Name:  flagStatsInterval,
					Usage: "print a stats table this often, zero prints it only at the end",
				},
				&cli.BoolFlag{
					Name:  flagQuiet,
					Usage: "do not print a line per frame",
				},
			},
			Action: RunAction,
		},
		{
			Name:   "validate",
			Usage:  "check a config file without opening any device",
			Flags:  []cli.Flag{configFlag},
			Action: ValidateAction,
		},
		{
			Name:      "labels",
			Usage:     "parse a label file and print its classes",
			ArgsUsage: "<label file>",
			Action:    LabelsAction,
		},
		{
			Name:   "types",
			Usage:  "list the registered source and model types",
			Action: TypesAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
