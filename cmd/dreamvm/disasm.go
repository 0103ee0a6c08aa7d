package main

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timewinder-dev/dreamvm/vm"
	"github.com/timewinder-dev/dreamvm/world"
)

var procFlag string

var disasmCmd = &cobra.Command{
	Use:   "disasm FILE",
	Short: "Print the annotated listing of a script or image",
	Args:  cobra.ExactArgs(1),
	Run:   disasmCommand,
}

func init() {
	disasmCmd.Flags().StringVar(&procFlag, "proc", "", "Only list procs with this name")
}

func disasmCommand(cmd *cobra.Command, args []string) {
	p, _, err := world.LoadProgramFile(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't load program")
	}
	st := vm.NewStringTableFrom(p.Strings)
	for _, proc := range p.Procs {
		if procFlag != "" && proc.Name != procFlag {
			continue
		}
		fmt.Println(color.Cyan.Sprint(p.ProcPath(proc.ID)))
		switch {
		case proc.Native():
			fmt.Println(color.Gray.Sprint("  ; native"))
			continue
		case proc.Invalid != "":
			fmt.Println(color.Red.Sprintf("  ; invalid: %s", proc.Invalid))
			continue
		}
		l, err := p.Listing(proc.ID, st)
		if err != nil {
			log.Error().Err(err).Str("proc", proc.Name).Msg("Couldn't decode proc")
			continue
		}
		if err := l.Write(os.Stdout, st); err != nil {
			log.Fatal().Err(err).Msg("write failed")
		}
	}
}
