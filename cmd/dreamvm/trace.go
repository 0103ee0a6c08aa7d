package main

import (
	"errors"
	"fmt"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timewinder-dev/dreamvm/interp"
	"github.com/timewinder-dev/dreamvm/sched"
	"github.com/timewinder-dev/dreamvm/vm"
	"github.com/timewinder-dev/dreamvm/world"
)

var (
	callFlag     string
	traceMaxTick int64
)

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Run one global proc, printing every executed instruction",
	Args:  cobra.ExactArgs(1),
	Run:   traceCommand,
}

func init() {
	traceCmd.Flags().StringVar(&callFlag, "call", "main", "Global proc to call")
	traceCmd.Flags().Int64Var(&traceMaxTick, "max-ticks", 1000, "Give up after this many ticks")
}

func traceCommand(cmd *cobra.Command, args []string) {
	p, t, err := world.LoadProgramFile(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't load program")
	}
	id, ok := p.GlobalProc(callFlag)
	if !ok {
		log.Fatal().Str("proc", callFlag).Msg("No such global proc")
	}
	c := interp.NewContext(p, t)
	s := sched.New(c)
	c.StepHook = func(ps *interp.ProcState, op vm.Opcode) {
		fmt.Printf("%s %s %s  stack=%d\n",
			color.Gray.Sprintf("[%d]", s.Now()),
			color.Cyan.Sprintf("%s@%d", p.ProcPath(ps.Proc.ID), ps.OpStart()),
			op, len(ps.Stack))
	}

	v, th, err := s.Call(id, vm.Null, vm.Null, interp.Args{})
	if errors.Is(err, interp.ErrUnresolved) {
		s.RunUntilIdle(traceMaxTick)
		v, err = th.Result(), th.Err()
		if th.Status() == interp.Suspended {
			log.Fatal().Int64("ticks", s.Now()).Msg("Proc still suspended")
		}
	}
	if err != nil {
		fmt.Println(color.Red.Sprintf("Crashed: %s", err))
		return
	}
	fmt.Println(color.Green.Sprintf("Finished after %d ticks: %s", s.Now(), c.Stringify(v)))
}
