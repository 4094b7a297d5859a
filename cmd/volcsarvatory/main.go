package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "volcsarvatory",
		Usage: "Partition Sentinel-1 bursts over volcanic AOIs into multi-burst jobs",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Partition every AOI whose extent changed and publish a job per multi-burst",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:      "prepare",
				Usage:     "Partition a list of burst ids into a multiburst.json document",
				ArgsUsage: "[burst ids...]",
				Flags:     prepareFlags(),
				Action:    prepare,
			},
			{
				Name:   "collect",
				Usage:  "Consume job messages and merge them into per-AOI multiburst.json documents",
				Flags:  collectFlags(),
				Action: collect,
			},
			{
				Name:   "remove",
				Usage:  "Remove the stored groups and state of an AOI",
				Flags:  removeFlags(),
				Action: remove,
			},
			{
				Name:   "import-frames",
				Usage:  "Load burst footprints from a CSV into the frame table",
				Flags:  importFramesFlags(),
				Action: importFrames,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
