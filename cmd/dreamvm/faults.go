package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timewinder-dev/dreamvm/faultlog"
	"github.com/timewinder-dev/dreamvm/world"
)

var limitFlag int

var faultsCmd = &cobra.Command{
	Use:   "faults JOURNAL",
	Short: "List crashes recorded in a fault journal",
	Args:  cobra.ExactArgs(1),
	Run:   faultsCommand,
}

func init() {
	faultsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Show at most this many of the newest records")
}

func faultsCommand(cmd *cobra.Command, args []string) {
	j, err := faultlog.OpenSQLite(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't open journal")
	}
	defer j.Close()
	n, err := j.Count(cmd.Context())
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't count faults")
	}
	recs, err := j.List(cmd.Context(), limitFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't read faults")
	}
	fmt.Fprint(os.Stdout, world.FormatFaults(recs))
	fmt.Printf("%d of %d faults shown\n", len(recs), n)
}
