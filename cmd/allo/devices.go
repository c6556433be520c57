package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/agilira/orpheus/pkg/orpheus"
)

func handleDevices(ctx *orpheus.Context) error {
	cfg, err := load(ctx.GetFlagString("config"))
	if err != nil {
		return err
	}
	backend := ctx.GetFlagString("backend")
	if backend == "" {
		backend = cfg.Audio.Backend
	}
	d, err := device(backend)
	if err != nil {
		return err
	}
	infos, err := d.Devices()
	if err != nil {
		return fmt.Errorf("error listing %s devices: %w", backend, err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tOUTPUTS\tINPUTS\tSAMPLE RATE")
	for _, info := range infos {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%v\n", info.Index, info.Name, info.MaxOutputs, info.MaxInputs, info.DefaultSampleRate)
	}
	return w.Flush()
}
