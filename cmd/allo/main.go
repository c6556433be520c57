// Command allo runs the composite application: audio with the output
// stage, control over OSC and the graphics frame loop.
package main

import (
	"fmt"
	"os"

	"github.com/agilira/orpheus/pkg/orpheus"
)

const version = "0.1.0"

func newCLI() *orpheus.App {
	cli := orpheus.New("allo").
		SetDescription("Audio, graphics and OSC control domains").
		SetVersion(version)

	run := orpheus.NewCommand("run", "Run the application").
		AddFlag("config", "c", "", "YAML configuration file, reloaded on change").
		AddFlag("record", "r", "", "Record output into .wav or .mp3 file").
		AddFlag("duration", "d", "", "Stop after duration, e.g. 30s").
		AddFlag("play", "p", "", "Play wav clip in a loop").
		SetHandler(handleRun)
	run.AddBoolFlag("verbose", "v", false, "Debug logging")
	cli.AddCommand(run)

	devices := orpheus.NewCommand("devices", "List audio devices").
		AddFlag("backend", "b", "", "Audio backend, default is the configured one").
		AddFlag("config", "c", "", "YAML configuration file").
		SetHandler(handleDevices)
	cli.AddCommand(devices)
	return cli
}

func main() {
	if err := newCLI().Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
