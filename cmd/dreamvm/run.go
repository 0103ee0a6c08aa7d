package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timewinder-dev/dreamvm/world"
)

var (
	maxTicksFlag int64
	quietFlag    bool
)

var runCmd = &cobra.Command{
	Use:   "run CONFIG",
	Short: "Boot a world from its config and run it",
	Args:  cobra.ExactArgs(1),
	Run:   runCommand,
}

func init() {
	runCmd.Flags().Int64Var(&maxTicksFlag, "max-ticks", 0, "Stop after this many ticks (overrides the config)")
	runCmd.Flags().BoolVar(&quietFlag, "quiet", false, "Don't print progress lines")
}

func runCommand(cmd *cobra.Command, args []string) {
	cfg, err := world.LoadConfigFromFile(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't load config")
	}
	if maxTicksFlag > 0 {
		cfg.World.MaxTicks = maxTicksFlag
	}
	w, err := world.Boot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't boot world")
	}
	defer w.Close()
	if !quietFlag {
		w.Reporter = &world.ColorReporter{Writer: os.Stderr}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintln(os.Stderr, color.Cyan.Sprintf("Running world %s...", cfg.World.Name))
	st, err := w.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("World stopped with an error")
	}
	if recent := w.Context.Faults.Recent(); len(recent) > 0 {
		fmt.Fprint(os.Stderr, world.FormatFaults(recent))
	}
	fmt.Fprint(os.Stderr, world.FormatStats(st))
}
