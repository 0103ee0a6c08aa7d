package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timewinder-dev/dreamvm/script"
	"github.com/timewinder-dev/dreamvm/vm"
	"github.com/timewinder-dev/dreamvm/world"
)

var outputFlag string

var assembleCmd = &cobra.Command{
	Use:   "assemble SCRIPT",
	Short: "Assemble a script into a program image",
	Args:  cobra.ExactArgs(1),
	Run:   assembleCommand,
}

func init() {
	assembleCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Image path (default: SCRIPT with a .dvm extension)")
}

func assembleCommand(cmd *cobra.Command, args []string) {
	p, _, err := script.LoadFile(args[0])
	if p == nil {
		log.Fatal().Err(err).Msg("Couldn't load script")
	}
	invalid := 0
	for _, proc := range p.Procs {
		if proc.Invalid != "" {
			invalid++
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.Red.Sprint("✗"), p.ProcPath(proc.ID), proc.Invalid)
		}
	}

	out := outputFlag
	if out == "" {
		out = strings.TrimSuffix(args[0], ".star") + world.ImageExt
	}
	f, err := os.Create(out)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't create image")
	}
	if err := vm.EncodeImage(f, p); err != nil {
		f.Close()
		log.Fatal().Err(err).Msg("Couldn't write image")
	}
	if err := f.Close(); err != nil {
		log.Fatal().Err(err).Msg("Couldn't write image")
	}
	fp, err := vm.Fingerprint(p)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't fingerprint image")
	}

	fmt.Fprintf(os.Stderr, "%s %s: %d types, %d procs, fingerprint %s\n",
		color.Green.Sprint("✓"), out, len(p.Types), len(p.Procs), fp)
	if invalid > 0 {
		fmt.Fprintln(os.Stderr, color.Yellow.Sprintf("⚠ %d procs failed to assemble and will fault when called", invalid))
		os.Exit(2)
	}
}
